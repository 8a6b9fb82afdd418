package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sdr-monitor/internal/config"
	"sdr-monitor/internal/dsp"
	"sdr-monitor/internal/hub"
	"sdr-monitor/internal/logging"
	"sdr-monitor/internal/radio"
	"sdr-monitor/internal/recorder"
	"sdr-monitor/internal/rtltcp"
	"sdr-monitor/internal/server"
	"sdr-monitor/internal/store"
)

type flags struct {
	config   string
	tuner    string
	listen   string
	freq     string
	mode     string
	password string
	logLevel string
}

var opts flags

var rootCmd = &cobra.Command{
	Use:          "sdr-monitor",
	Short:        "Demodulate an rtl_tcp stream and serve it to websocket listeners",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&opts.config, "config", "c", "", "ini config file (default $"+config.EnvFile+")")
	f.StringVar(&opts.tuner, "tuner", "", "rtl_tcp host:port")
	f.StringVar(&opts.listen, "listen", "", "HTTP listen address")
	f.StringVarP(&opts.freq, "freq", "f", "", "start frequency, e.g. 93.5M")
	f.StringVarP(&opts.mode, "mode", "m", "", "start mode, AM or FM")
	f.StringVar(&opts.password, "password", "", "retune password")
	f.StringVar(&opts.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR")
}

// loadConfig reads the ini file and applies the flags that were set.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(opts.config)
	if err != nil {
		return nil, err
	}
	if fs.Changed("tuner") {
		host, port, err := splitHostPort(opts.tuner)
		if err != nil {
			return nil, err
		}
		cfg.Tuner.Host, cfg.Tuner.Port = host, port
	}
	if fs.Changed("listen") {
		cfg.Web.Listen = opts.listen
	}
	if fs.Changed("freq") {
		cfg.Radio.Frequency = opts.freq
	}
	if fs.Changed("mode") {
		cfg.Radio.Mode = opts.mode
	}
	if fs.Changed("password") {
		cfg.Web.Password = opts.password
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logging.Setup(cfg.Log.Level, os.Stderr)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	freq, err := cfg.FrequencyHz()
	if err != nil {
		return err
	}
	mode, err := dsp.ParseMode(cfg.Radio.Mode)
	if err != nil {
		return err
	}
	session := radio.Session{
		Frequency:  freq,
		Mode:       mode,
		SampleRate: cfg.Tuner.SampleRate,
		Decimation: dsp.DecimationFactor(cfg.Tuner.SampleRate, cfg.Audio.TargetRate),
	}
	log.Printf("[INFO] monitor: %d Hz %s, decimation %d, audio %.2f Hz",
		freq, mode, session.Decimation, session.AudioRate())

	floors, err := store.OpenSquelch(cfg.Storage.SquelchFile)
	if err != nil {
		return err
	}
	marks, err := store.OpenBookmarks(cfg.Storage.BookmarksFile)
	if err != nil {
		return err
	}
	recs, err := store.OpenRecordings(cfg.Storage.RecordingsPath)
	if err != nil {
		return err
	}
	format, err := recorder.ParseFormat(cfg.Storage.RecordingFormat)
	if err != nil {
		return err
	}

	rec := recorder.New(recs.Dir(), session.AudioRate(), format)
	srv := server.New(server.Options{
		Hub:        hub.New(cfg.Web.SendQueue),
		Recorder:   rec,
		Floors:     floors,
		Recordings: recs,
		Bookmarks:  marks,
		Auth:       server.Password(cfg.Web.Password),
	})
	rec.OnFailure = srv.RecordingFailed

	var pipe *radio.Pipeline
	link := rtltcp.New(rtltcp.Config{
		Addr:           cfg.TunerAddr(),
		SampleRate:     uint32(cfg.Tuner.SampleRate),
		ReconnectDelay: cfg.Tuner.ReconnectDelay,
		ReadSize:       cfg.Tuner.ReadBuffer,
		MinRead:        2 * session.Decimation,
		Frequency:      func() uint32 { return pipe.Snapshot().Frequency },
		OnConnect: func(rtltcp.DongleInfo) {
			s := pipe.Snapshot()
			if err := pipe.Retune(ctx, int64(s.Frequency), s.Mode.String()); err != nil {
				log.Printf("[WARN] monitor: resume: %v", err)
			}
		},
	})
	ctrl := radio.NewController(session, cfg.Radio.SettleTime, link)
	pipe = radio.NewPipeline(ctrl, srv.PublishStatus, srv, rec)
	srv.SetRadio(pipe)

	httpSrv := &http.Server{Addr: cfg.Web.Listen, Handler: srv.Handler()}
	chunks := make(chan []byte, 16)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		link.Run(ctx, chunks)
	}()
	go func() {
		defer wg.Done()
		pipe.Run(ctx, chunks)
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("[INFO] monitor: listening on http://%s", cfg.Web.Listen)
	err = httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if err != nil {
		log.Printf("[ERROR] monitor: %v", err)
		cancel()
	}
	wg.Wait()

	if rec.IsRecording() {
		if _, err := rec.Stop(); err != nil {
			log.Printf("[ERROR] monitor: %v", err)
		}
	}
	return err
}

func splitHostPort(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("port %q: %w", p, err)
	}
	return host, port, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
