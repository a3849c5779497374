// Package tonemodem implements an acoustic data modem.
//
// A short payload is turned into audio made of many simultaneous tones, one
// tone pair per bit position, protected by a Reed-Solomon code; captured audio
// is turned back into the payload. The audio itself is the wire: there is no
// framing other than the tone pattern, the start and end markers, and the ECC
// layout.
//
// # Getting Started
//
// Create a session for the audio stream format and transmit:
//
//	s, err := tonemodem.New(protocol.DefaultStreamConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s.SetTxMode(protocol.VariableLength)
//
//	if err := s.Init([]byte("hello")); err != nil {
//	    log.Fatal(err)
//	}
//	s.Send(func(frame []byte) {
//	    speaker.Write(frame)
//	})
//
// Receive by handing captured bytes to the session until a payload arrives:
//
//	for !s.HasData() {
//	    s.Receive(func(buf []byte) int {
//	        n, _ := microphone.Read(buf)
//	        return n
//	    })
//	}
//	buf := make([]byte, protocol.MaxLength)
//	n := s.TakeRxData(buf)
//	fmt.Printf("received %q\n", buf[:n])
//
// # Core Types
//
//   - [Session]: owns every buffer of one modem instance
//   - [Observer]: event hook, implemented by metrics.Collector
//   - [TimeProvider]: injectable clock for latency statistics
//
// # Packages
//
// The engine is split into protocol (parameters and derived constants), ecc
// (codec adapter), dsp (spectrum, sample formats, resampling), tx (synthesis)
// and rx (receive state machine). Around it, config loads YAML settings,
// wavfile reads and writes WAV files, channel simulates an acoustic path and
// metrics exports Prometheus counters.
//
// # Thread Safety
//
// A Session is not safe for concurrent use. Use one session per stream
// direction or serialize calls with a mutex.
package tonemodem
