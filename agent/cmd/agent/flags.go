package main

import (
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/fieldtrack/fieldtrack/agent/internal/config"
)

// flags holds the command line. Only flags the user actually passed are
// applied over the config file; set records which ones those are.
type flags struct {
	configPath   string
	verbose      bool
	uploadFreq   int
	archiveDir   string
	archive      bool
	failedDir    string
	reuploadFreq int
	uploadURL    string
	trackerCert  string
	trackerKey   string
	timeout      int
	clientName   string
	sensor       string
	statusListen string

	set map[string]bool
}

func newApp(f *flags) *kingpin.Application {
	f.set = make(map[string]bool)
	mark := func(name string) kingpin.Action {
		return func(*kingpin.ParseContext) error {
			f.set[name] = true
			return nil
		}
	}

	app := kingpin.New("fieldtrack-agent", "Collects GPS reports and ships them to the fieldtrack collector.")
	app.Version("fieldtrack-agent " + version)
	app.HelpFlag.Short('h')

	app.Flag("config", "Config file.").Short('c').Default("").StringVar(&f.configPath)
	app.Flag("verbose", "Increase output verbosity.").Short('v').Action(mark("verbose")).BoolVar(&f.verbose)
	app.Flag("upload-freq", "Upload frequency in seconds.").Short('u').Default("60").Action(mark("upload-freq")).IntVar(&f.uploadFreq)
	app.Flag("archive-dir", "Directory to keep GPS data in.").Short('g').Default(config.DefaultArchiveDir).Action(mark("archive-dir")).StringVar(&f.archiveDir)
	app.Flag("archive", "Keep local copy of GPS data.").Short('w').Action(mark("archive")).BoolVar(&f.archive)
	app.Flag("failed-dir", "Directory to store failed uploads.").Short('f').Default(config.DefaultSpoolDir).Action(mark("failed-dir")).StringVar(&f.failedDir)
	app.Flag("reupload-freq", "Reupload retry frequency in seconds.").Short('r').Default("60").Action(mark("reupload-freq")).IntVar(&f.reuploadFreq)
	app.Flag("upload-url", "Collector web service URL.").Default(config.DefaultUploadURL).Action(mark("upload-url")).StringVar(&f.uploadURL)
	app.Flag("tracker-cert", "Client cert file for upload TLS auth.").Default(config.DefaultCertFile).Action(mark("tracker-cert")).StringVar(&f.trackerCert)
	app.Flag("tracker-key", "Client key file for upload TLS auth.").Default(config.DefaultKeyFile).Action(mark("tracker-key")).StringVar(&f.trackerKey)
	app.Flag("timeout", "Upload timeout in seconds.").Short('t').Default("10").Action(mark("timeout")).IntVar(&f.timeout)
	app.Flag("client-name", "Name of this tracker at the collector.").Action(mark("client-name")).StringVar(&f.clientName)
	app.Flag("sensor", "Record source: gpsd or simulate.").Action(mark("sensor")).EnumVar(&f.sensor, "gpsd", "simulate")
	app.Flag("status-listen", "Serve the status API on this host:port.").Action(mark("status-listen")).StringVar(&f.statusListen)
	return app
}

// apply copies user-set flags into cfg.
func (f *flags) apply(cfg *config.Config) {
	if f.set["verbose"] && f.verbose {
		cfg.Log.Level = "debug"
	}
	if f.set["upload-freq"] {
		cfg.Shipper.Interval = seconds(f.uploadFreq)
	}
	if f.set["archive-dir"] {
		cfg.Archive.Dir = f.archiveDir
	}
	if f.set["archive"] {
		cfg.Archive.Enabled = f.archive
	}
	if f.set["failed-dir"] {
		cfg.Spool.Dir = f.failedDir
	}
	if f.set["reupload-freq"] {
		cfg.Sweeper.Interval = seconds(f.reuploadFreq)
	}
	if f.set["upload-url"] {
		cfg.Uploader.URL = f.uploadURL
	}
	if f.set["tracker-cert"] {
		cfg.Uploader.CertFile = f.trackerCert
	}
	if f.set["tracker-key"] {
		cfg.Uploader.KeyFile = f.trackerKey
	}
	if f.set["timeout"] {
		cfg.Uploader.Timeout = seconds(f.timeout)
	}
	if f.set["client-name"] {
		cfg.ClientName = f.clientName
	}
	if f.set["sensor"] {
		cfg.Sensor.Type = f.sensor
	}
	if f.set["status-listen"] {
		cfg.Status.Listen = f.statusListen
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// loadConfig reads the config file, if any, applies flags and validates.
func (f *flags) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
