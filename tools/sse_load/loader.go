package main

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type loadConfig struct {
	url   string
	actor string
	conns int
	ramp  time.Duration
}

type stats struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64
	heartbeats  atomic.Int64

	mu        sync.Mutex
	byMachine map[string]int64
}

type statsSnapshot struct {
	connected, connectErrs, streamErrs, events, heartbeats int64
	byMachine                                              map[string]int64
}

func (s *stats) snapshot() statsSnapshot {
	s.mu.Lock()
	byMachine := make(map[string]int64, len(s.byMachine))
	for k, v := range s.byMachine {
		byMachine[k] = v
	}
	s.mu.Unlock()

	return statsSnapshot{
		connected:   s.connected.Load(),
		connectErrs: s.connectErrs.Load(),
		streamErrs:  s.streamErrs.Load(),
		events:      s.events.Load(),
		heartbeats:  s.heartbeats.Load(),
		byMachine:   byMachine,
	}
}

// observe counts one line of an event stream.
func (s *stats) observe(line string) {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case line == "":
	case strings.HasPrefix(line, ":"):
		s.heartbeats.Add(1)
	case strings.HasPrefix(line, "event: "):
		s.events.Add(1)
		s.mu.Lock()
		s.byMachine[strings.TrimPrefix(line, "event: ")]++
		s.mu.Unlock()
	}
}

type loader struct {
	cfg    loadConfig
	client *http.Client
	stats  *stats
}

func newLoader(cfg loadConfig) *loader {
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.conns + 100,
		MaxIdleConns:        cfg.conns + 100,
		MaxIdleConnsPerHost: cfg.conns + 100,
		DisableCompression:  true,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &loader{
		cfg:    cfg,
		client: &http.Client{Transport: transport}, // no timeout: streaming
		stats:  &stats{byMachine: make(map[string]int64)},
	}
}

// run opens cfg.conns subscriptions and blocks until ctx is done and all readers exit.
func (l *loader) run(ctx context.Context) {
	var interval time.Duration
	if l.cfg.ramp > 0 {
		interval = l.cfg.ramp / time.Duration(l.cfg.conns)
	}

	var wg sync.WaitGroup
	for i := 0; i < l.cfg.conns && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.subscribe(ctx)
		}()
	}
	wg.Wait()
}

func (l *loader) subscribe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.url, nil)
	if err != nil {
		l.stats.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Actor-ID", l.cfg.actor)

	resp, err := l.client.Do(req)
	if err != nil {
		l.stats.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		l.stats.connectErrs.Add(1)
		return
	}

	l.stats.connected.Add(1)
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				l.stats.streamErrs.Add(1)
			}
			return
		}
		l.stats.observe(line)
	}
}
