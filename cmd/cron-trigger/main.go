package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"aurelienallenic/api/logger"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type options struct {
	baseURL string
	secret  string
	runOnce string
	timeout time.Duration
}

// parseOptions reads flags from args. The secret only comes from CRON_SECRET
// so it never appears in the process list.
func parseOptions(args []string, getenv func(string) string) (options, error) {
	baseURL := getenv("BACKEND_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}

	var opts options
	fs := flag.NewFlagSet("cron-trigger", flag.ContinueOnError)
	fs.StringVar(&opts.baseURL, "base-url", baseURL, "API base URL")
	fs.StringVar(&opts.runOnce, "run-once", "", "run one job (daily, monthly or yearly) and exit")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "per call timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.secret = getenv("CRON_SECRET")
	if opts.secret == "" {
		return options{}, errors.New("CRON_SECRET is required")
	}
	return opts, nil
}

func main() {
	_ = godotenv.Load()

	log := logger.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "json"))
	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("invalid options")
	}
	client := newTriggerClient(opts.baseURL, opts.secret, opts.timeout)

	if opts.runOnce != "" {
		j, ok := findJob(defaultJobs, opts.runOnce)
		if !ok {
			log.WithField("job", opts.runOnce).Fatal("unknown job, use daily, monthly or yearly")
		}
		body, err := client.fire(context.Background(), j.path)
		if err != nil {
			log.WithError(err).WithField("job", j.name).Fatal("aggregation trigger failed")
		}
		log.WithFields(logrus.Fields{"job": j.name, "response": body}).Info("aggregation triggered")
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	for _, j := range defaultJobs {
		_, err := c.AddFunc(j.schedule, func() {
			entry := log.WithField("job", j.name)
			entry.Info("triggering aggregation")
			body, err := client.fire(context.Background(), j.path)
			if err != nil {
				entry.WithError(err).Error("aggregation trigger failed")
				return
			}
			entry.WithField("response", body).Info("aggregation triggered")
		})
		if err != nil {
			log.WithError(err).WithField("job", j.name).Fatal("failed to schedule job")
		}
		log.WithFields(logrus.Fields{"job": j.name, "schedule": j.schedule}).Info("job scheduled")
	}

	c.Start()
	log.WithField("base_url", opts.baseURL).Info("cron trigger started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()
	log.Info("cron trigger stopped")
}
