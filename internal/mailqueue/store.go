package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"golang.org/x/sys/unix"

	"spool/internal/clock"
	"spool/internal/config"
	"spool/internal/logging"
)

const (
	dirMode                 = 0o700
	defaultCreateRetryDelay = 10 * time.Second
	defaultMaxCollisions    = 1000
)

var (
	enterTotal         = metrics.NewCounter("spool_queue_enter_total")
	enterCollisions    = metrics.NewCounter("spool_queue_enter_collisions_total")
	createRetriesTotal = metrics.NewCounter("spool_queue_create_retries_total")
)

// Store manages queue files below one spool root. It is safe for
// concurrent use.
type Store struct {
	root          string
	hashed        map[string]struct{}
	depth         int
	clock         clock.Clock
	identity      func(*os.File) (string, error)
	pid           int
	retryDelay    time.Duration
	maxCollisions int
	logger        *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the time source used for queue ids and retry sleeps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = clock.Ensure(c) }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logging.NewComponentLogger(logger, "mailqueue") }
}

// WithRetryDelay sets the sleep between failed temp file creations.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.retryDelay = d
		}
	}
}

// WithMaxCollisions bounds the id collisions tolerated by one Enter call.
func WithMaxCollisions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxCollisions = n
		}
	}
}

// WithFileIdentity replaces the inode-based identity token.
func WithFileIdentity(fn func(*os.File) (string, error)) Option {
	return func(s *Store) {
		if fn != nil {
			s.identity = fn
		}
	}
}

// WithPID overrides the process id embedded in temp file names.
func WithPID(pid int) Option {
	return func(s *Store) { s.pid = pid }
}

// New returns a Store rooted at root. Queues listed in hashNames keep their
// files below a hash forest of the given depth. The hash configuration is
// fixed for the lifetime of the Store.
func New(root string, hashNames []string, depth int, opts ...Option) *Store {
	s := &Store{
		root:          root,
		hashed:        make(map[string]struct{}, len(hashNames)),
		depth:         depth,
		clock:         clock.Real{},
		identity:      inodeIdentity,
		pid:           os.Getpid(),
		retryDelay:    defaultCreateRetryDelay,
		maxCollisions: defaultMaxCollisions,
		logger:        logging.NewComponentLogger(nil, "mailqueue"),
	}
	for _, name := range hashNames {
		s.hashed[name] = struct{}{}
	}
	if s.depth < 0 {
		s.depth = 0
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig builds a Store from the queue and paths configuration.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) *Store {
	base := []Option{
		WithLogger(logger),
		WithRetryDelay(cfg.CreateRetryDelay()),
		WithMaxCollisions(cfg.Queue.MaxCollisions),
	}
	return New(cfg.Paths.QueueDir, cfg.Queue.HashQueueNames, cfg.Queue.HashQueueDepth, append(base, opts...)...)
}

// Hashed reports whether queue keeps its files below a hash forest.
func (s *Store) Hashed(queue string) bool {
	_, ok := s.hashed[queue]
	return ok
}

// Enter creates a new file in queue and returns it open for writing along
// with its queue id. The returned file's Name is the final absolute path.
func (s *Store) Enter(ctx context.Context, queue string, mode os.FileMode) (*os.File, string, error) {
	if !ValidName(queue) {
		panic(fmt.Sprintf("mailqueue: bad queue name %q", queue))
	}
	usec := int32(s.clock.Now().Nanosecond() / 1000)

	file, tempPath, err := s.createTemp(ctx, queue, &usec, mode)
	if err != nil {
		return nil, "", err
	}

	token, err := s.identity(file)
	if err != nil {
		s.abandon(file, tempPath)
		return nil, "", err
	}

	madeDirs := false
	for collisions := 0; ; {
		id := fmt.Sprintf("%05X", usec) + token
		finalPath := s.AbsPath(queue, id)
		err := renameNoReplace(tempPath, finalPath)
		if err == nil {
			named, err := reopenAs(file, finalPath)
			if err != nil {
				s.abandon(file, finalPath)
				return nil, "", err
			}
			enterTotal.Inc()
			return named, id, nil
		}
		switch {
		case errors.Is(err, unix.EEXIST), errors.Is(err, unix.EPERM), errors.Is(err, unix.EISDIR):
			collisions++
			enterCollisions.Inc()
			if collisions >= s.maxCollisions {
				s.abandon(file, tempPath)
				return nil, "", fmt.Errorf("enter %s: %w", queue, ErrTooManyCollisions)
			}
			usec = bumpUsec(usec)
		case errors.Is(err, unix.ENOENT) && !madeDirs:
			madeDirs = true
			if err := s.MakeDirs(s.Path(queue, id)); err != nil {
				s.abandon(file, tempPath)
				return nil, "", err
			}
		default:
			s.abandon(file, tempPath)
			return nil, "", fmt.Errorf("rename %s to %s: %w", tempPath, finalPath, err)
		}
	}
}

// createTemp creates queue/<usec>.<pid> exclusively. Name clashes bump usec
// and retry immediately; other failures are logged and retried after the
// configured delay until ctx is done.
func (s *Store) createTemp(ctx context.Context, queue string, usec *int32, mode os.FileMode) (*os.File, string, error) {
	failures := 0
	for {
		tempPath := filepath.Join(s.root, queue, strconv.Itoa(int(*usec))+"."+strconv.Itoa(s.pid))
		file, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, mode)
		if err == nil {
			return file, tempPath, nil
		}
		if errors.Is(err, fs.ErrExist) || errors.Is(err, unix.EISDIR) {
			*usec = bumpUsec(*usec)
			continue
		}

		failures++
		createRetriesTotal.Inc()
		attrs := []logging.Attr{
			logging.String(logging.FieldQueue, queue),
			logging.String("path", tempPath),
			logging.Int("attempt", failures),
			logging.Duration("retry_in", s.retryDelay),
			logging.Error(err),
		}
		if failures == 1 {
			logging.WarnWithContext(s.logger, "create queue file failed", "queue_create_retry",
				append(attrs, logging.String(logging.FieldErrorHint, "check spool directory permissions and free space"))...)
		} else {
			s.logger.Debug("create queue file failed again", logging.Args(attrs...)...)
		}
		if err := s.sleep(ctx); err != nil {
			return nil, "", fmt.Errorf("enter %s: %w", queue, err)
		}
	}
}

func (s *Store) sleep(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(s.retryDelay):
		return nil
	}
}

func (s *Store) abandon(file *os.File, tempPath string) {
	_ = file.Close()
	_ = os.Remove(tempPath)
}

func bumpUsec(usec int32) int32 {
	if usec == math.MaxInt32 {
		return 0
	}
	return usec + 1
}

// Open opens an existing queue entry. When flag includes os.O_CREATE and
// the directory is missing, the directories are created and the open is
// retried once.
func (s *Store) Open(queue, id string, flag int, mode os.FileMode) (*os.File, error) {
	path := s.Path(queue, id)
	file, err := os.OpenFile(s.abs(path), flag, mode)
	if err != nil && flag&os.O_CREATE != 0 && errors.Is(err, fs.ErrNotExist) {
		if mkErr := s.MakeDirs(path); mkErr != nil {
			return nil, mkErr
		}
		file, err = os.OpenFile(s.abs(path), flag, mode)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return file, nil
}

// Rename moves the entry id from one queue to another, keeping its id.
// A failed rename creates the destination directories and retries once.
func (s *Store) Rename(id, from, to string) error {
	oldPath := s.Path(from, id)
	newPath := s.Path(to, id)
	err := os.Rename(s.abs(oldPath), s.abs(newPath))
	if err != nil {
		if mkErr := s.MakeDirs(newPath); mkErr != nil {
			return fmt.Errorf("rename %s to %s: %w", oldPath, newPath, err)
		}
		err = os.Rename(s.abs(oldPath), s.abs(newPath))
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if _, statErr := os.Stat(s.abs(oldPath)); errors.Is(statErr, fs.ErrNotExist) {
				return fmt.Errorf("rename %s to %s: %w", oldPath, newPath, ErrNotFound)
			}
		}
		return fmt.Errorf("rename %s to %s: %w", oldPath, newPath, err)
	}
	return nil
}

// Remove unlinks the entry id from queue.
func (s *Store) Remove(queue, id string) error {
	path := s.Path(queue, id)
	if err := os.Remove(s.abs(path)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Entry names one file found by Scan.
type Entry struct {
	Queue string
	ID    string
	// Path is relative to the spool root.
	Path    string
	Size    int64
	ModTime time.Time
}

// Scan lists the files of queue, descending into the hash forest. Temp
// files and names that are not valid queue ids are skipped. A missing
// queue directory yields no entries.
func (s *Store) Scan(ctx context.Context, queue string) ([]Entry, error) {
	if !ValidName(queue) {
		panic(fmt.Sprintf("mailqueue: bad queue name %q", queue))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	top := filepath.Join(s.root, queue)
	var entries []Entry
	err := filepath.WalkDir(top, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == top && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != top && !s.Hashed(queue) {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !d.Type().IsRegular() || IsTempName(name) || !ValidID(name) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Queue:   queue,
			ID:      name,
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", queue, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}
