package device

import (
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultSerialPort    = "/dev/ttyACM0"
	defaultUARTBaud      = 115200
	defaultIDFBaud       = 921600
	defaultProbeTimeout  = 6 * time.Second
	defaultSampleTimeout = 10 * time.Second
	defaultRebootDelay   = 1500 * time.Millisecond
	defaultBuildTimeout  = 30 * time.Minute
	defaultFlashTimeout  = 10 * time.Minute
)

// Staged artifact names inside the staging directory. The firmware mounts the
// staging image and loads exactly these paths.
const (
	modelFileName = "model_fp32.bin"
	metaFileName  = "model_meta.json"
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	SerialPort string
	UARTBaud   int
	IDFBaud    int
	// ProjectDir is the firmware project passed to idf.py -C.
	ProjectDir string
	// StagingDir receives staged model artifacts; defaults to
	// <ProjectDir>/spiffs_image.
	StagingDir string

	ProbeTimeout  time.Duration
	SampleTimeout time.Duration
	RebootDelay   time.Duration
	BuildTimeout  time.Duration
	FlashTimeout  time.Duration

	// Runner executes external toolchain commands; defaults to os/exec.
	Runner ToolRunner
	// Ports opens the serial link; defaults to the real serial port.
	Ports PortOpener
	// Logger for lifecycle events; nil disables logging.
	Logger *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.SerialPort == "" {
		cfg.SerialPort = defaultSerialPort
	}
	if cfg.UARTBaud <= 0 {
		cfg.UARTBaud = defaultUARTBaud
	}
	if cfg.IDFBaud <= 0 {
		cfg.IDFBaud = defaultIDFBaud
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(cfg.ProjectDir, "spiffs_image")
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.SampleTimeout <= 0 {
		cfg.SampleTimeout = defaultSampleTimeout
	}
	if cfg.RebootDelay <= 0 {
		cfg.RebootDelay = defaultRebootDelay
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = defaultBuildTimeout
	}
	if cfg.FlashTimeout <= 0 {
		cfg.FlashTimeout = defaultFlashTimeout
	}
	m := &Manager{cfg: cfg, startTime: time.Now()}
	m.runner = cfg.Runner
	if m.runner == nil {
		m.runner = NewExecRunner()
	}
	m.ports = cfg.Ports
	if m.ports == nil {
		m.ports = NewSerialOpener(cfg.SerialPort, cfg.UARTBaud)
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	} else {
		m.log = zerolog.Nop()
	}
	return m
}

// New constructs a Manager for the given link and firmware project with
// default timeouts and real capabilities.
func New(serialPort string, uartBaud, idfBaud int, projectDir string) *Manager {
	return NewWithConfig(ManagerConfig{
		SerialPort: serialPort,
		UARTBaud:   uartBaud,
		IDFBaud:    idfBaud,
		ProjectDir: projectDir,
	})
}
