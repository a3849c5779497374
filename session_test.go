package tonemodem

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/tonemodem/channel"
	"github.com/opd-ai/tonemodem/dsp"
	"github.com/opd-ai/tonemodem/ecc"
	"github.com/opd-ai/tonemodem/protocol"
	"github.com/opd-ai/tonemodem/rx"
)

type recordingObserver struct {
	framesSent   int
	payloadsSent []int
	markers      int
	received     []int
	analysis     []time.Duration
	failures     int
	syncLosses   int
}

func (o *recordingObserver) FrameSent()        { o.framesSent++ }
func (o *recordingObserver) PayloadSent(n int) { o.payloadsSent = append(o.payloadsSent, n) }
func (o *recordingObserver) MarkerDetected()   { o.markers++ }

func (o *recordingObserver) PayloadReceived(n int, d time.Duration) {
	o.received = append(o.received, n)
	o.analysis = append(o.analysis, d)
}

func (o *recordingObserver) DecodeFailed(syncLost bool) {
	if syncLost {
		o.syncLosses++
		return
	}
	o.failures++
}

type stepClock struct{ step time.Duration }

func (c stepClock) Now() time.Time                { return time.Time{} }
func (c stepClock) Since(time.Time) time.Duration { return c.step }

func newSession(t *testing.T, cfg protocol.StreamConfig, mode protocol.TxMode, opts ...Option) *Session {
	t.Helper()
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	s.SetTxMode(mode)
	return s
}

// transmit runs Init and Send and returns the emitted bytes and frame count.
func transmit(t *testing.T, s *Session, text []byte) ([]byte, int) {
	t.Helper()
	require.NoError(t, s.Init(text))

	var out bytes.Buffer
	frames := 0
	s.Send(func(data []byte) {
		out.Write(data)
		frames++
	})
	return out.Bytes(), frames
}

func reader(data []byte) DequeueAudioFunc {
	r := bytes.NewReader(data)
	return func(buf []byte) int {
		n, _ := r.Read(buf)
		return n
	}
}

// withSilence surrounds data with lead and tail bytes of silence.
func withSilence(data []byte, lead, tail int) []byte {
	out := make([]byte, lead, lead+len(data)+tail)
	out = append(out, data...)
	return append(out, make([]byte, tail)...)
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(' ' + (i*7)%90)
	}
	return b
}

func TestHelloScenario(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	sender := newSession(t, cfg, protocol.FixedLength)
	data, frames := transmit(t, sender, []byte("hello"))

	assert.Equal(t, 342, sender.FramesToRecord())
	assert.Equal(t, 16+sender.FramesToRecord()+16, frames)
	assert.Len(t, data, frames*cfg.SamplesPerFrame*cfg.SampleSizeBytesOut)
	assert.False(t, sender.HasData())

	receiver := newSession(t, cfg, protocol.FixedLength)
	receiver.Receive(reader(withSilence(data, 7*4096, 4*4096)))

	assert.True(t, receiver.HasData())
	assert.Equal(t, []byte("hello"), receiver.RxData())
	assert.Equal(t, 5, receiver.TotalBytesCaptured())
	assert.Equal(t, rx.Idle, receiver.RxState())
}

func TestRoundTrip(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()

	tests := []struct {
		mode    protocol.TxMode
		lengths []int
	}{
		{protocol.VariableLength, []int{0, 1, 4, 5, 17, 82, 139, 140}},
		{protocol.FixedLength, []int{0, 1, 50, 82}},
	}

	for _, tt := range tests {
		for _, n := range tt.lengths {
			t.Run(fmt.Sprintf("%s/%d", tt.mode, n), func(t *testing.T) {
				payload := pattern(n)
				sender := newSession(t, cfg, tt.mode)
				data, _ := transmit(t, sender, payload)

				receiver := newSession(t, cfg, tt.mode)
				receiver.Receive(reader(withSilence(data, 3*4096+1200, 4*4096)))

				require.True(t, receiver.HasData())
				assert.Equal(t, payload, receiver.RxData())
			})
		}
	}
}

func TestSampleFormats(t *testing.T) {
	tests := []struct {
		name string
		cfg  protocol.StreamConfig
	}{
		{"int16", protocol.StreamConfig{
			SampleRateIn: 48000, SampleRateOut: 48000, SamplesPerFrame: 1024,
			SampleSizeBytesIn: 2, SampleSizeBytesOut: 2,
		}},
		{"small frames", protocol.StreamConfig{
			SampleRateIn: 24000, SampleRateOut: 24000, SamplesPerFrame: 512,
			SampleSizeBytesIn: 4, SampleSizeBytesOut: 4,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := newSession(t, tt.cfg, protocol.VariableLength)
			// default tones reach bin 133, inside 256 bins for 512-sample frames
			data, frames := transmit(t, sender, []byte("format"))
			assert.Len(t, data, frames*tt.cfg.SamplesPerFrame*tt.cfg.SampleSizeBytesOut)

			receiver := newSession(t, tt.cfg, protocol.VariableLength)
			lead := 5 * tt.cfg.SamplesPerFrame * tt.cfg.SampleSizeBytesIn
			receiver.Receive(reader(withSilence(data, lead, lead)))

			require.True(t, receiver.HasData())
			assert.Equal(t, []byte("format"), receiver.RxData())
		})
	}
}

func TestPartialDequeue(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	sender := newSession(t, cfg, protocol.VariableLength)
	data, _ := transmit(t, sender, []byte("partial"))
	stream := withSilence(data, 2*4096, 4*4096)

	receiver := newSession(t, cfg, protocol.VariableLength)
	calls := 0
	pos := 0
	dequeue := func(buf []byte) int {
		calls++
		// starve on every third call and never hand out more than 97 bytes
		if calls%3 == 0 || pos >= len(stream) {
			return 0
		}
		n := copy(buf[:min(len(buf), 97)], stream[pos:])
		pos += n
		return n
	}

	for i := 0; i < 10*len(stream) && !receiver.HasData(); i++ {
		receiver.Receive(dequeue)
	}
	require.True(t, receiver.HasData())
	assert.Equal(t, []byte("partial"), receiver.RxData())
}

// throughChannel plays float32 data through gain, a leading delay of delay
// samples and white noise, with four frames of trailing silence.
func throughChannel(t *testing.T, data []byte, gain float64, delay int, sigma float64, seed int64) []byte {
	t.Helper()
	samples := make([]float32, len(data)/4)
	dsp.DecodeFloat32LE(samples, data)
	samples = append(samples, make([]float32, 4*1024)...)

	g, err := channel.NewGain(gain)
	require.NoError(t, err)
	d, err := channel.NewDelay(delay)
	require.NoError(t, err)
	noise, err := channel.NewWhiteNoise(sigma, seed)
	require.NoError(t, err)

	samples, err = channel.NewChain(g, d, noise).Process(samples)
	require.NoError(t, err)

	buf := make([]byte, 4*len(samples))
	dsp.EncodeFloat32LE(buf, samples)
	return buf
}

func TestNoiseTolerance(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()

	// rows marked decode must succeed; the others may lose the transmission
	// but must never return anything other than the sent text
	tests := []struct {
		name   string
		mode   protocol.TxMode
		text   []byte
		gain   float64
		sigma  float64
		decode bool
	}{
		{"variable quiet", protocol.VariableLength, []byte("through the air"), 0.8, 0.005, true},
		{"variable", protocol.VariableLength, []byte("through the air"), 1, 0.01, true},
		{"variable loud noise", protocol.VariableLength, []byte("through the air"), 1, 0.02, true},
		{"fixed", protocol.FixedLength, []byte("hello"), 1, 0.015, true},
		{"fixed loud noise", protocol.FixedLength, []byte("hello"), 1, 0.02, true},
		{"fixed marginal", protocol.FixedLength, []byte("hello"), 1, 0.03, false},
		{"fixed heavy", protocol.FixedLength, []byte("hello"), 1, 0.05, false},
		{"fixed swamped", protocol.FixedLength, []byte("hello"), 1, 0.1, false},
	}

	for _, tt := range tests {
		for seed := int64(1); seed <= 3; seed++ {
			t.Run(fmt.Sprintf("%s/seed%d", tt.name, seed), func(t *testing.T) {
				sender := newSession(t, cfg, tt.mode)
				data, _ := transmit(t, sender, tt.text)

				receiver := newSession(t, cfg, tt.mode)
				receiver.Receive(reader(throughChannel(t, data, tt.gain, 4*1024+300, tt.sigma, seed)))

				if tt.decode {
					require.True(t, receiver.HasData())
				}
				if receiver.HasData() {
					assert.Equal(t, tt.text, receiver.RxData())
				}
			})
		}
	}
}

func TestBackToBackReceive(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	frame := cfg.SamplesPerFrame * cfg.SampleSizeBytesIn

	for _, mode := range []protocol.TxMode{protocol.FixedLength, protocol.VariableLength} {
		for _, gap := range []int{0, 1} {
			t.Run(fmt.Sprintf("%s/gap%d", mode, gap), func(t *testing.T) {
				obs := &recordingObserver{}
				sender := newSession(t, cfg, mode)
				first, _ := transmit(t, sender, []byte("one"))
				second, _ := transmit(t, sender, []byte("two"))

				stream := make([]byte, 2*frame)
				stream = append(stream, first...)
				stream = append(stream, make([]byte, gap*frame)...)
				stream = append(stream, second...)
				stream = append(stream, make([]byte, 4*frame)...)
				dequeue := reader(stream)

				receiver := newSession(t, cfg, mode, WithObserver(obs))
				buf := make([]byte, protocol.MaxDataSize)

				receiver.Receive(dequeue)
				require.True(t, receiver.HasData())
				assert.Equal(t, []byte("one"), buf[:receiver.TakeRxData(buf)])

				receiver.Receive(dequeue)
				require.True(t, receiver.HasData())
				assert.Equal(t, []byte("two"), buf[:receiver.TakeRxData(buf)])

				assert.Equal(t, 2, obs.markers)
				assert.Equal(t, []int{3, 3}, obs.received)
				assert.Zero(t, obs.failures)
			})
		}
	}
}

func TestFixedModeDropsTrailingZeros(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	sender := newSession(t, cfg, protocol.FixedLength)
	data, _ := transmit(t, sender, []byte{'a', 0, 'b', 0, 0})

	receiver := newSession(t, cfg, protocol.FixedLength)
	receiver.Receive(reader(withSilence(data, 2*4096, 4*4096)))
	require.True(t, receiver.HasData())
	assert.Equal(t, []byte{'a', 0, 'b'}, receiver.RxData())
	assert.Equal(t, 3, receiver.TotalBytesCaptured())
}

func TestResampledPlayback(t *testing.T) {
	cfg := protocol.StreamConfig{
		SampleRateIn: 48000, SampleRateOut: 44100, SamplesPerFrame: 1024,
		SampleSizeBytesIn: 4, SampleSizeBytesOut: 4,
	}
	sender := newSession(t, cfg, protocol.VariableLength)
	assert.Equal(t, 941, sender.SamplesPerFrameOut())
	data, _ := transmit(t, sender, []byte("resampled"))

	played := make([]float32, len(data)/4)
	dsp.DecodeFloat32LE(played, data)

	rs, err := dsp.NewResampler(44100, 48000)
	require.NoError(t, err)
	captured := rs.Resample(make([]float32, 2*1024), played)
	captured = append(captured, make([]float32, 4*1024)...)

	buf := make([]byte, 4*len(captured))
	dsp.EncodeFloat32LE(buf, captured)

	receiver := newSession(t, cfg, protocol.VariableLength)
	receiver.Receive(reader(buf))
	require.True(t, receiver.HasData())
	assert.Equal(t, []byte("resampled"), receiver.RxData())
}

func TestPassThroughCodec(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	sender := newSession(t, cfg, protocol.VariableLength, WithCodecFactory(ecc.NewPassThrough))
	data, frames := transmit(t, sender, []byte("plain"))

	// 3 length bytes + 5 data bytes + 4 zero ECC bytes in 2-byte groups
	assert.Equal(t, 16+6*6+16, frames)

	receiver := newSession(t, cfg, protocol.VariableLength, WithCodecFactory(ecc.NewPassThrough))
	receiver.Receive(reader(withSilence(data, 4096, 4*4096)))
	require.True(t, receiver.HasData())
	assert.Equal(t, []byte("plain"), receiver.RxData())
}

func TestObserverEvents(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	txObs := &recordingObserver{}
	sender := newSession(t, cfg, protocol.FixedLength, WithObserver(txObs))
	data, frames := transmit(t, sender, []byte("observed"))

	assert.Equal(t, frames, txObs.framesSent)
	assert.Equal(t, []int{8}, txObs.payloadsSent)

	rxObs := &recordingObserver{}
	receiver := newSession(t, cfg, protocol.FixedLength,
		WithObserver(rxObs), WithTimeProvider(stepClock{step: 3 * time.Millisecond}))
	receiver.Receive(reader(withSilence(data, 4096, 4*4096)))

	assert.Equal(t, 1, rxObs.markers)
	assert.Equal(t, []int{8}, rxObs.received)
	assert.Equal(t, []time.Duration{3 * time.Millisecond}, rxObs.analysis)
	assert.Zero(t, rxObs.failures)
	assert.InDelta(t, 3.0, receiver.AverageRxTimeMs(), 1e-9)
}

func TestReceivePausesWhilePayloadPending(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	sender := newSession(t, cfg, protocol.VariableLength)
	data, _ := transmit(t, sender, []byte("first"))

	receiver := newSession(t, cfg, protocol.VariableLength)
	receiver.Receive(reader(withSilence(data, 4096, 4*4096)))
	require.True(t, receiver.HasData())

	calls := 0
	counting := func(buf []byte) int {
		calls++
		return 0
	}
	receiver.Receive(counting)
	assert.Zero(t, calls)

	buf := make([]byte, protocol.MaxDataSize)
	n := receiver.TakeRxData(buf)
	assert.Equal(t, []byte("first"), buf[:n])
	assert.False(t, receiver.HasData())

	receiver.Receive(counting)
	assert.Equal(t, 1, calls)
}

func TestPureNoiseIsIgnored(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	rxObs := &recordingObserver{}
	receiver := newSession(t, cfg, protocol.FixedLength, WithObserver(rxObs))

	rng := rand.New(rand.NewSource(11))
	samples := make([]float32, 300*1024)
	for i := range samples {
		samples[i] = float32(rng.NormFloat64() * 0.1)
	}
	buf := make([]byte, 4*len(samples))
	dsp.EncodeFloat32LE(buf, samples)

	receiver.Receive(reader(buf))
	assert.False(t, receiver.HasData())
	assert.Zero(t, rxObs.markers)
	assert.Equal(t, rx.Idle, receiver.RxState())
}

func TestSetParameters(t *testing.T) {
	tests := []struct {
		name   string
		params [5]int
		err    error
	}{
		{"freq delta too small", [5]int{1, 40, 6, 2, 10}, protocol.ErrInvalidParameter},
		{"zero frames per tx", [5]int{6, 40, 0, 2, 10}, protocol.ErrInvalidParameter},
		{"volume too high", [5]int{6, 40, 6, 2, 101}, protocol.ErrInvalidParameter},
		{"too many bits", [5]int{2, 10, 1, 33, 10}, protocol.ErrTooManyBits},
		{"tone above nyquist", [5]int{10, 200, 6, 8, 10}, protocol.ErrToneOutOfRange},
		{"recording too long", [5]int{6, 40, 20, 1, 10}, protocol.ErrRecordingTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, protocol.DefaultStreamConfig(), protocol.FixedLength)
			p := tt.params
			err := s.SetParameters(p[0], p[1], p[2], p[3], p[4])
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, protocol.DefaultParams(), s.Params())
		})
	}
}

func TestSetParametersRoundTrip(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	sender := newSession(t, cfg, protocol.VariableLength)
	receiver := newSession(t, cfg, protocol.VariableLength)
	for _, s := range []*Session{sender, receiver} {
		require.NoError(t, s.SetParameters(4, 30, 4, 4, 40))
		require.NoError(t, s.SetParameters(4, 30, 4, 4, 40))
		assert.Equal(t, protocol.Params{FreqDelta: 4, FreqStart: 30, FramesPerTx: 4, BytesPerTx: 4, Volume: 40}, s.Params())
	}

	data, _ := transmit(t, sender, []byte("wider groups"))
	receiver.Receive(reader(withSilence(data, 3*4096, 4*4096)))
	require.True(t, receiver.HasData())
	assert.Equal(t, []byte("wider groups"), receiver.RxData())
}

func TestSetParametersDropsPendingTransmission(t *testing.T) {
	s := newSession(t, protocol.DefaultStreamConfig(), protocol.VariableLength)
	require.NoError(t, s.Init([]byte("pending")))
	require.True(t, s.HasData())

	require.NoError(t, s.SetParameters(6, 40, 6, 2, 10))
	assert.False(t, s.HasData())
	sent := 0
	s.Send(func([]byte) { sent++ })
	assert.Zero(t, sent)
}

func TestInitRejectsOversizedText(t *testing.T) {
	s := newSession(t, protocol.DefaultStreamConfig(), protocol.VariableLength)
	assert.NoError(t, s.Init(make([]byte, protocol.MaxLength)))

	err := s.Init(make([]byte, protocol.MaxLength+1))
	assert.ErrorIs(t, err, protocol.ErrPayloadTooLarge)
	assert.True(t, s.HasData())
}

func TestNewRejectsInvalidStreamConfig(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	cfg.SampleSizeBytesIn = 3
	_, err := New(cfg)
	assert.ErrorIs(t, err, protocol.ErrInvalidStreamConfig)
}

func TestSessionAccessors(t *testing.T) {
	cfg := protocol.DefaultStreamConfig()
	a := newSession(t, cfg, protocol.FixedLength)
	b := newSession(t, cfg, protocol.VariableLength)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, protocol.FixedLength, a.TxMode())
	assert.Equal(t, protocol.VariableLength, b.TxMode())
	assert.Equal(t, 1024, a.SamplesPerFrame())
	assert.Equal(t, 4, a.SampleSizeBytesIn())
	assert.Equal(t, 4, a.SampleSizeBytesOut())
	assert.Equal(t, 48000, a.SampleRateIn())
	assert.Equal(t, 48000, a.SampleRateOut())
	assert.Equal(t, 46.875, a.Derived().HzPerFrame)
	assert.Equal(t, time.Duration(1024)*time.Second/48000, a.FrameDuration())
	assert.Zero(t, a.FramesToRecord())
	assert.Zero(t, a.FramesLeftToRecord())
	assert.Zero(t, a.FramesToAnalyze())
	assert.Zero(t, a.FramesLeftToAnalyze())
	assert.Zero(t, a.TotalBytesCaptured())
	assert.Zero(t, a.AverageRxTimeMs())
	assert.Empty(t, a.RxData())
	assert.False(t, a.HasData())
}
