package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/codewandler/dispatch-go/adapters/nats"
	"github.com/codewandler/dispatch-go/adapters/prometheus"
	"github.com/codewandler/dispatch-go/core/actor"
	"github.com/codewandler/dispatch-go/core/config"
	"github.com/codewandler/dispatch-go/core/plugin"
	"github.com/codewandler/dispatch-go/core/supervision"
)

// === Config ===

// NOTE: with NATS=1 run nats first: docker run --net=host nats:latest

var (
	logLevel    = slog.LevelInfo
	N           = getEnvInt("N", 100_000)
	actors      = getEnvInt("ACTORS", 64)
	batchSize   = getEnvInt("B", 10_000)
	failEvery   = getEnvInt("FAIL_EVERY", 0)
	mailboxName = getEnv("MAILBOX", plugin.NameQueueMailbox)
	configPath  = getEnv("CONFIG", "")
	metricsAddr = getEnv("METRICS_ADDR", "")
	useNats     = getEnvBool("NATS", false)
)

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	return v == "1" || strings.ToLower(v) == "true"
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

var errInjected = errors.New("injected failure")

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	fmt.Printf("Mailbox: %s\n", mailboxName)
	fmt.Printf(" Actors: %d\n", actors)
	fmt.Printf("      N: %d\n", N)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	opts := actor.Options{Name: "loadtest", Log: log, Properties: loadProperties()}

	if metricsAddr != "" {
		reg := prom.NewRegistry()
		opts.Metrics = prometheus.NewAllMetrics(reg)
		go func() {
			err := http.ListenAndServe(metricsAddr, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Error("metrics server stopped", slog.Any("error", err))
		}()
		log.Info("serving metrics", slog.String("addr", metricsAddr))
	}

	if useNats {
		pub, err := nats.NewEventPublisher(nats.PublisherOptions{
			Connect:       nats.ConnectDefault(),
			SubjectPrefix: "dispatch.loadtest",
			Log:           log,
		})
		checkErr(err)
		defer pub.Close()
		opts.Observers = append(opts.Observers, pub)
		opts.DeadLetters = append(opts.DeadLetters, pub)
	}

	stage, err := actor.NewStage(opts)
	checkErr(err)
	defer stage.Close()

	counters := make([]*actor.Actor, actors)
	for i := range counters {
		counters[i], err = stage.Spawn(actor.SpawnOptions{
			Protocol: "loadtest.Counter",
			Mailbox:  mailboxName,
		})
		checkErr(err)
	}

	// === START ===

	log.Info("==================================")
	log.Info("Starting ...")

	var (
		delivered atomic.Int64
		failed    atomic.Int64
		startAt   = time.Now()
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range counters {
		g.Go(func() error {
			for j := 0; j < N/actors; j++ {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				inject := failEvery > 0 && (i*N+j)%failEvery == 0
				err := a.Tell("count()", func() error {
					if inject {
						failed.Add(1)
						return errInjected
					}
					delivered.Add(1)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	checkErr(g.Wait())
	sentAt := time.Now()

	total := int64(N / actors * actors)
	lastTime, lastCount := time.Now(), int64(0)
	for delivered.Load()+failed.Load() < total {
		if ctx.Err() != nil {
			checkErr(ctx.Err())
		}
		time.Sleep(10 * time.Millisecond)
		done := delivered.Load() + failed.Load()
		if done-lastCount >= int64(batchSize) {
			mu := getMemUsage()
			n := time.Now()
			took := n.Sub(lastTime)
			fmt.Printf(" | %7d msgs | %6d ms | %8d msgs/s | (%d / %d) MiB mem (sys) |\n", done-lastCount, took.Milliseconds(), int(float64(done-lastCount)/took.Seconds()), mu.Alloc/1024/1024, mu.Sys/1024/1024)
			lastTime, lastCount = n, done
		}
	}

	// answers flow back through pooled completes
	for _, a := range counters[:min(len(counters), 4)] {
		ok, err := actor.Ask(ctx, a, "ping()", func() (bool, error) { return true, nil })
		checkErr(err)
		checkTrue(ok)
	}

	// === stats ===
	println("")
	println("==========================================")

	doneAt := time.Now()
	took := doneAt.Sub(startAt)
	runtime.GC()

	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("    send time: %.3f seconds\n", sentAt.Sub(startAt).Seconds())
	fmt.Printf("    delivered: %d\n", delivered.Load())
	fmt.Printf("       failed: %d\n", failed.Load())
	fmt.Printf(" dead letters: %d\n", stage.DeadLetters().Count())
	fmt.Printf("   avg. msg/s: %d\n", int(float64(total)/took.Seconds()))
}

func loadProperties() *config.Properties {
	if configPath != "" {
		props, err := config.Load(configPath)
		checkErr(err)
		return props
	}
	return config.FromMap(map[string]any{
		"plugin.name." + plugin.NameQueueMailbox:              true,
		"plugin.name." + plugin.NameRingBufferMailbox:         true,
		"plugin.name." + plugin.NameArrayQueueMailbox:         true,
		"plugin.name." + plugin.NamePooledCompletes:           true,
		"plugin.name." + plugin.NameCommonSupervisors:         true,
		"plugin.name." + plugin.NameDefaultSupervisorOverride: true,

		"plugin.queueMailbox.defaultMailbox":                 true,
		"plugin.queueMailbox.dispatcherThrottlingCount":      16,
		"plugin.ringBufferMailbox.size":                      1 << 16,
		"plugin.ringBufferMailbox.dispatcherThrottlingCount": 16,
		"plugin.arrayQueueMailbox.size":                      N/max(actors, 1) + 1,
		"plugin.pooledCompletes.pool":                        10,
		"plugin.commonSupervisors.types": []any{
			map[string]any{
				"name":      "counters",
				"protocol":  "loadtest.Counter",
				"intensity": supervision.ForeverIntensity,
				"scope":     "one",
			},
		},
	})
}

// === stats helpers ===

type MemUsage struct {
	Alloc      uint64 // bytes allocated and not yet freed (heap)
	TotalAlloc uint64 // cumulative bytes allocated
	Sys        uint64 // total bytes obtained from OS
	NumGC      uint32 // gc cycles
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// === Helpers ===

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}

func checkTrue(v bool) {
	if !v {
		panic("unexpected false")
	}
}
