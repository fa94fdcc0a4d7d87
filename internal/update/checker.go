// Package update checks for newer released versions in the background,
// rate-limited to at most one outbound request per interval.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/mod/semver"

	"github.com/bibkeep/bibkeep/internal/events"
)

const (
	// ReleasesURL lists published releases, newest first.
	ReleasesURL = "https://api.github.com/repos/bibkeep/bibkeep/releases"

	// DefaultInterval is the minimum time between outbound checks.
	DefaultInterval = 24 * time.Hour

	requestTimeout = 10 * time.Second
)

// ErrNoReleases indicates the release feed contained no stable versions.
var ErrNoReleases = errors.New("no stable releases found")

// State is the persisted check bookkeeping.
type State struct {
	LastCheck     time.Time
	LastNotified  time.Time
	LatestVersion string
}

// Store persists State between runs.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// Checker performs the version check. At most one check runs at a time;
// concurrent starts are dropped rather than queued.
type Checker struct {
	Version  string
	Interval time.Duration
	Enabled  bool

	store  Store
	bus    *events.Bus
	latest func(ctx context.Context) (string, error)

	running atomic.Int32
}

// Option configures a Checker.
type Option func(*Checker)

// WithLatestFunc overrides how the latest released version is obtained.
func WithLatestFunc(fn func(ctx context.Context) (string, error)) Option {
	return func(c *Checker) { c.latest = fn }
}

// New creates a Checker for the running version.
func New(version string, store Store, bus *events.Bus, opts ...Option) *Checker {
	c := &Checker{
		Version:  version,
		Interval: DefaultInterval,
		Enabled:  true,
		store:    store,
		bus:      bus,
		latest:   latestRelease,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches a background check and returns immediately. Failures are
// swallowed; an update check must never disturb the foreground work.
func (c *Checker) Start(ctx context.Context) {
	go func() { _ = c.RunOnce(ctx) }()
}

// RunOnce performs a single check. It skips without touching the network
// when checking is disabled, a check is already in flight, or the last
// check is fresher than the interval.
func (c *Checker) RunOnce(ctx context.Context) error {
	if !c.Enabled {
		return nil
	}
	if !c.running.CompareAndSwap(0, 1) {
		return nil
	}
	defer c.running.Store(0)

	state, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("loading update state: %w", err)
	}
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := time.Now()
	if !state.LastCheck.IsZero() && now.Sub(state.LastCheck) < interval {
		return nil
	}

	// Record the attempt before the request so a failing feed is retried
	// once per interval, not on every launch.
	state.LastCheck = now
	latest, err := c.latest(ctx)
	if err != nil {
		_ = c.store.Save(state)
		return fmt.Errorf("fetching latest version: %w", err)
	}

	if Newer(latest, c.Version) {
		state.LatestVersion = latest
		state.LastNotified = now
		c.bus.Publish(events.UpdateAvailable{Version: latest})
	}
	return c.store.Save(state)
}

// Newer reports whether latest is a strictly newer semantic version than
// current. Unparseable versions never trigger a notification.
func Newer(latest, current string) bool {
	l, cur := canonical(latest), canonical(current)
	if !semver.IsValid(l) || !semver.IsValid(cur) {
		return false
	}
	return semver.Compare(l, cur) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// latestRelease queries the release feed and returns the highest stable
// version, ignoring drafts and prereleases.
func latestRelease(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ReleasesURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching releases: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching releases: HTTP %d", resp.StatusCode)
	}

	var releases []struct {
		TagName    string `json:"tag_name"`
		Draft      bool   `json:"draft"`
		Prerelease bool   `json:"prerelease"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return "", fmt.Errorf("decoding releases: %w", err)
	}

	best := ""
	for _, r := range releases {
		if r.Draft || r.Prerelease {
			continue
		}
		v := canonical(r.TagName)
		if !semver.IsValid(v) || semver.Prerelease(v) != "" {
			continue
		}
		if best == "" || semver.Compare(v, best) > 0 {
			best = v
		}
	}
	if best == "" {
		return "", ErrNoReleases
	}
	return best, nil
}
