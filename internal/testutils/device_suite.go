package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/hoststack"
	"github.com/srg/vwifi/internal/wifi"
	"github.com/srg/vwifi/pkg/config"
	"github.com/stretchr/testify/suite"
)

// DeviceSuite is a reusable testify suite owning one device wired to an
// in-process host stack.
//
// Embedders adjust Config in their own SetupTest before calling the parent:
//
//	func (s *MySuite) SetupTest() {
//	    s.Config = config.DefaultConfig()
//	    s.Config.ScanLatency = time.Second
//	    s.DeviceSuite.SetupTest()
//	}
type DeviceSuite struct {
	suite.Suite

	Logger      *logrus.Logger
	Config      *config.Config
	Recorder    *hoststack.Recorder
	Device      *wifi.Device
	TestTimeout time.Duration
}

// SetupTest creates the device. A nil Config gets defaults with a 1ms scan latency.
func (s *DeviceSuite) SetupTest() {
	if s.Logger == nil {
		s.Logger = logrus.New()
		s.Logger.SetLevel(logrus.PanicLevel)
	}
	if s.TestTimeout == 0 {
		s.TestTimeout = 5 * time.Second
	}
	if s.Config == nil {
		s.Config = config.DefaultConfig()
		s.Config.ScanLatency = time.Millisecond
	}

	s.Recorder = hoststack.NewRecorder(hoststack.Options{
		EventBuffer: s.Config.EventBuffer,
		JournalSize: s.Config.JournalSize,
	}, s.Logger)

	dev, err := wifi.New(s.Config, s.Recorder, s.Logger)
	s.Require().NoError(err, "device creation MUST succeed")
	s.Device = dev
}

// TearDownTest releases the device and resets per-test configuration.
func (s *DeviceSuite) TearDownTest() {
	if s.Device != nil {
		s.Device.Close()
		s.Device = nil
	}
	s.Config = nil
}

// WaitFor returns the next event of type t or fails the test.
func (s *DeviceSuite) WaitFor(t hoststack.EventType) hoststack.Event {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	defer cancel()

	ev, err := s.Recorder.WaitFor(ctx, hoststack.OfType(t))
	s.Require().NoError(err, "%s notification MUST arrive", t)
	return ev
}
