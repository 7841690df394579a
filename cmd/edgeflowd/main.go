package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"edgeflowd/internal/config"
	"edgeflowd/internal/device"
	"edgeflowd/internal/httpapi"
)

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envStr("EDGEFLOW_ADDR", ":"+envStr("PORT", "8080")), "HTTP listen address, e.g. :8080")
	serialPort := flag.String("serial-port", envStr("SERIAL_PORT", "/dev/ttyACM0"), "Serial device of the attached board")
	uartBaud := flag.Int("uart-baud", envInt("UART_BAUD", 115200), "Baud rate for the model protocol UART")
	idfBaud := flag.Int("idf-baud", envInt("IDF_BAUD", 921600), "Baud rate passed to idf.py for build/flash")
	projectDir := flag.String("project-dir", envStr("ESP_PROJECT", "esp32/model_client"), "Firmware project directory passed to idf.py -C")
	cfgPath := flag.String("config", "", "Optional config file (.yaml/.json/.toml); explicit flags win")
	logLevel := flag.String("log-level", envStr("EDGEFLOW_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	maxBodyMB := flag.Int("max-body-mb", envInt("EDGEFLOW_MAX_BODY_MB", 64), "Maximum upload size in MiB")
	corsOrigins := flag.String("cors-origins", envStr("EDGEFLOW_CORS_ORIGINS", ""), "Comma-separated allowed CORS origins (empty disables CORS)")
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()

	mcfg := device.ManagerConfig{
		SerialPort: *serialPort,
		UARTBaud:   *uartBaud,
		IDFBaud:    *idfBaud,
		ProjectDir: *projectDir,
		Logger:     &log,
	}
	if *cfgPath != "" {
		fileCfg, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *cfgPath).Msg("failed to load config")
		}
		applyFileConfig(&mcfg, addr, fileCfg)
	}

	mgr := device.NewWithConfig(mcfg)

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(int64(*maxBodyMB) << 20)
	if *corsOrigins != "" {
		httpapi.SetCORSOptions(true,
			strings.Split(*corsOrigins, ","),
			[]string{"GET", "POST", "OPTIONS"},
			[]string{"Accept", "Content-Type"})
	}
	baseCtx, cancelBase := context.WithCancel(context.Background())
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{Addr: *addr, Handler: httpapi.NewMux(mgr)}
	go func() {
		log.Info().Str("addr", *addr).Str("serial", mcfg.SerialPort).Msg("edgeflowd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
}

// applyFileConfig fills manager settings from a config file without
// overriding flags the user set explicitly.
func applyFileConfig(mcfg *device.ManagerConfig, addr *string, fc config.Config) {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if fc.Addr != "" && !set["addr"] {
		*addr = fc.Addr
	}
	if fc.SerialPort != "" && !set["serial-port"] {
		mcfg.SerialPort = fc.SerialPort
	}
	if fc.UARTBaud > 0 && !set["uart-baud"] {
		mcfg.UARTBaud = fc.UARTBaud
	}
	if fc.IDFBaud > 0 && !set["idf-baud"] {
		mcfg.IDFBaud = fc.IDFBaud
	}
	if fc.ProjectDir != "" && !set["project-dir"] {
		mcfg.ProjectDir = fc.ProjectDir
	}
	if fc.ProbeTimeoutMS > 0 {
		mcfg.ProbeTimeout = time.Duration(fc.ProbeTimeoutMS) * time.Millisecond
	}
	if fc.SampleTimeoutMS > 0 {
		mcfg.SampleTimeout = time.Duration(fc.SampleTimeoutMS) * time.Millisecond
	}
	if fc.RebootDelayMS > 0 {
		mcfg.RebootDelay = time.Duration(fc.RebootDelayMS) * time.Millisecond
	}
	if fc.BuildTimeoutS > 0 {
		mcfg.BuildTimeout = time.Duration(fc.BuildTimeoutS) * time.Second
	}
	if fc.FlashTimeoutS > 0 {
		mcfg.FlashTimeout = time.Duration(fc.FlashTimeoutS) * time.Second
	}
}
