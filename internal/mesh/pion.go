package mesh

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wzin/concord/internal/config"
	"github.com/wzin/concord/internal/vad"
)

const controlChannelLabel = "control"

// NewPionFactory returns a TransportFactory backed by pion peer connections,
// configured with the client's ICE servers. STUN/TURN negotiation, DTLS and
// codec handling all live below this seam.
func NewPionFactory(cfg *config.Client) TransportFactory {
	iceServers := []webrtc.ICEServer{{URLs: cfg.STUNServers()}}
	if turn := cfg.TURNServers(); turn != nil {
		user, pass := cfg.TURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn,
			Username:   user,
			Credential: pass,
		})
	}

	settings := webrtc.SettingEngine{}
	settings.LoggerFactory = logging.NewDefaultLoggerFactory()
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))

	return func(role Role, events TransportEvents) (LinkTransport, error) {
		pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}

		t := &pionTransport{pc: pc, events: events}

		// Every link carries bidirectional audio.
		if _, err := pc.AddTransceiverFromKind(
			webrtc.RTPCodecTypeAudio,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
		); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add audio transceiver: %w", err)
		}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil || events.OnICECandidate == nil {
				return
			}
			payload, err := json.Marshal(c.ToJSON())
			if err != nil {
				slog.Error("encode ice candidate", "err", err)
				return
			}
			events.OnICECandidate(payload)
		})

		pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			if events.OnStateChange == nil {
				return
			}
			switch s {
			case webrtc.PeerConnectionStateConnected:
				events.OnStateChange(TransportConnected)
			case webrtc.PeerConnectionStateFailed:
				events.OnStateChange(TransportFailed)
			case webrtc.PeerConnectionStateClosed:
				events.OnStateChange(TransportClosed)
			}
		})

		pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			slog.Debug("remote track", "codec", tr.Codec().MimeType, "id", tr.ID())
			go t.analyzeTrack(tr)
		})

		switch role {
		case RoleInitiator:
			dc, err := pc.CreateDataChannel(controlChannelLabel, nil)
			if err != nil {
				pc.Close()
				return nil, fmt.Errorf("create control channel: %w", err)
			}
			t.bindControl(dc)
		case RoleResponder:
			pc.OnDataChannel(func(dc *webrtc.DataChannel) {
				if dc.Label() == controlChannelLabel {
					t.bindControl(dc)
				}
			})
		}

		return t, nil
	}
}

// pionTransport adapts one *webrtc.PeerConnection to the LinkTransport seam.
type pionTransport struct {
	pc     *webrtc.PeerConnection
	events TransportEvents

	mu      sync.Mutex
	control *webrtc.DataChannel
}

func (t *pionTransport) bindControl(dc *webrtc.DataChannel) {
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		if t.events.OnControl == nil {
			return
		}
		var msg ControlMessage
		if err := msgpack.Unmarshal(m.Data, &msg); err != nil {
			slog.Debug("bad control frame", "err", err)
			return
		}
		t.events.OnControl(msg)
	})

	t.mu.Lock()
	t.control = dc
	t.mu.Unlock()
}

func (t *pionTransport) CreateOffer() (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local offer: %w", err)
	}
	return json.Marshal(offer)
}

func (t *pionTransport) HandleOffer(offer json.RawMessage) (json.RawMessage, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(offer, &desc); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return nil, fmt.Errorf("set remote offer: %w", err)
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local answer: %w", err)
	}
	return json.Marshal(answer)
}

func (t *pionTransport) HandleAnswer(answer json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(answer, &desc); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (t *pionTransport) AddICECandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	if err := t.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// SendControl ships advisory state over the control channel; frames sent
// before the channel opens are dropped.
func (t *pionTransport) SendControl(msg ControlMessage) error {
	t.mu.Lock()
	dc := t.control
	t.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return nil
	}

	b, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode control frame: %w", err)
	}
	return dc.Send(b)
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

// analyzeTrack attaches a voice activity detector to a live remote stream.
// Opus DTX keeps silence frames down to a few bytes, so RTP payload size is a
// usable energy proxy without touching the codec. The loop ends when the
// track does.
func (t *pionTransport) analyzeTrack(tr *webrtc.TrackRemote) {
	const packetsPerWindow = 16

	detector := vad.New(func(speaking bool) {
		if t.events.OnSpeaking != nil {
			t.events.OnSpeaking(speaking)
		}
	})
	defer detector.Close()

	window := make([]float64, 0, packetsPerWindow)
	for {
		pkt, _, err := tr.ReadRTP()
		if err != nil {
			return
		}

		level := math.Min(float64(len(pkt.Payload)), 255)
		window = append(window, level)
		if len(window) == packetsPerWindow {
			detector.Process(window)
			window = window[:0]
		}
	}
}
