package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "drumbot/pkg/logx"
)

// Job is one run of a scheduled task. ctx carries the per-run timeout.
type Job func(ctx context.Context) error

type Config struct {
	Location *time.Location
}

type entry struct {
	name    string
	spec    string
	id      cron.EntryID
	timeout time.Duration
}

type onceTimer struct {
	timer *time.Timer
	at    time.Time
	ver   uint64
}

// Service triggers named jobs on cron specs, fixed intervals or once.
// Names are unique across all kinds; adding a name again replaces it.
type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	loc     *time.Location
	parser  cron.Parser
	c       *cron.Cron
	entries map[string]*entry
	once    map[string]*onceTimer
	onceVer uint64

	runCtx    context.Context
	runCancel context.CancelFunc
	running   bool
	wg        sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{log: log}
	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		log:    log,
		loc:    loc,
		parser: parser,
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		entries:   map[string]*entry{},
		once:      map[string]*onceTimer{},
		runCtx:    ctx,
		runCancel: cancel,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	if s.runCtx.Err() != nil {
		s.runCtx, s.runCancel = context.WithCancel(context.Background())
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

// Stop halts triggering, cancels running jobs and waits for them up to ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	for name, o := range s.once {
		o.timer.Stop()
		delete(s.once, name)
	}
	s.mu.Unlock()
	if !wasRunning {
		return
	}

	cronDone := s.c.Stop().Done()
	s.runCancel()
	done := make(chan struct{})
	go func() {
		<-cronDone
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
	}
}

func (s *Service) wrap(name string, timeout time.Duration, job Job) func() {
	return func() {
		s.wg.Add(1)
		defer s.wg.Done()
		ctx := s.runCtx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			s.log.Warn("scheduled job failed", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
			return
		}
		s.log.Debug("scheduled job done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}
}

// AddCron registers job under a cron spec in the scheduler's timezone.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s.add(name, spec, sched, timeout, job)
}

// AddDaily runs job every day at hour:minute scheduler time.
func (s *Service) AddDaily(name string, hour, minute int, timeout time.Duration, job Job) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid time %02d:%02d", hour, minute)
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", minute, hour), timeout, job)
}

// AddInterval runs job every interval, first one interval after registration.
func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job Job) error {
	if every <= 0 {
		return errors.New("interval must be > 0")
	}
	return s.add(name, "@every "+every.String(), cron.Every(every), timeout, job)
}

func (s *Service) add(name, spec string, sched cron.Schedule, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	id := s.c.Schedule(sched, cron.FuncJob(s.wrap(name, timeout, job)))
	s.entries[name] = &entry{name: name, spec: spec, id: id, timeout: timeout}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Time("next", sched.Next(time.Now().In(s.loc))))
	return nil
}

// AddOnce runs job once after delay. Re-adding the name reschedules it.
func (s *Service) AddOnce(name string, delay time.Duration, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	delay = max(delay, 0)
	run := s.wrap(name, timeout, job)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.onceVer++
	ver := s.onceVer
	t := time.AfterFunc(delay, func() {
		s.mu.Lock()
		cur, ok := s.once[name]
		if !ok || cur.ver != ver {
			s.mu.Unlock()
			return
		}
		delete(s.once, name)
		s.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("one-time job panicked", logx.String("name", name), logx.Any("panic", r))
			}
		}()
		run()
	})
	s.once[name] = &onceTimer{timer: t, at: time.Now().Add(delay), ver: ver}
	return nil
}

// Remove drops a schedule or pending one-time job by name.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	removed := false
	if e, ok := s.entries[name]; ok {
		s.c.Remove(e.id)
		delete(s.entries, name)
		removed = true
	}
	if o, ok := s.once[name]; ok {
		o.timer.Stop()
		delete(s.once, name)
		removed = true
	}
	return removed
}

func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, a := s.entries[name]
	_, b := s.once[name]
	return a || b
}

type EntryInfo struct {
	Name string
	Spec string
	Next time.Time
}

// Entries lists registered schedules sorted by name. Next is computed from
// the cron schedule, so it is valid before Start as well.
func (s *Service) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().In(s.loc)
	out := make([]EntryInfo, 0, len(s.entries)+len(s.once))
	for _, e := range s.entries {
		info := EntryInfo{Name: e.name, Spec: e.spec}
		if sched := s.c.Entry(e.id).Schedule; sched != nil {
			info.Next = sched.Next(now)
		}
		out = append(out, info)
	}
	for name, o := range s.once {
		out = append(out, EntryInfo{Name: name, Spec: "@once", Next: o.at.In(s.loc)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Entry returns one schedule by name.
func (s *Service) Entry(name string) (EntryInfo, bool) {
	for _, e := range s.Entries() {
		if e.Name == name {
			return e, true
		}
	}
	return EntryInfo{}, false
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
