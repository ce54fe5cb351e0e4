// Package groupcache maintains the UID -> sorted-set-of-supplementary-GIDs
// map described in spec §4.4, rebuilt by scanning the system group
// database and refreshed on a timer, on SIGHUP, and (as a supplement drawn
// from fsnotify already being a teacher dependency) whenever the group file
// changes on disk.
package groupcache

import (
	"bufio"
	"os"
	"os/user"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultGroupFile is the system group database path scanned by Refresh.
const DefaultGroupFile = "/etc/group"

// Logger is the minimal logging surface groupcache needs; internal/mlog's
// *Logger satisfies it.
type Logger interface {
	Infof(format string, args ...interface{}) error
	Warnf(format string, args ...interface{}) error
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{}) error { return nil }
func (nopLogger) Warnf(string, ...interface{}) error { return nil }

// membership is one immutable snapshot of the UID -> sorted GID list map.
// Swapped in atomically so a concurrent IsMember reader never observes a
// partially-built map (spec §5 ordering guarantee).
type membership map[uint32][]uint32

func (m membership) isMember(uid, gid uint32) bool {
	gids, ok := m[uid]
	if !ok {
		return false
	}
	i := sort.Search(len(gids), func(i int) bool { return gids[i] >= gid })
	return i < len(gids) && gids[i] == gid
}

// Cache is the process-wide group-membership cache. The zero value is not
// usable; construct with New.
type Cache struct {
	groupFile   string
	checkMtime  bool
	log         Logger
	current     atomic.Pointer[membership]
	mu          sync.Mutex // serializes rebuilds and ghost-set bookkeeping
	lastMtime   int64
	lastBuilt   bool
	ghostUsers  map[string]struct{}
	userToUID   map[string]uint32 // resolution cache, valid for one build pass
}

// New constructs a Cache that has not yet been built; call Refresh before
// the first IsMember lookup (IsMember on an unbuilt cache returns false).
func New(groupFile string, checkMtime bool, log Logger) *Cache {
	if groupFile == "" {
		groupFile = DefaultGroupFile
	}
	if log == nil {
		log = nopLogger{}
	}
	c := &Cache{
		groupFile:  groupFile,
		checkMtime: checkMtime,
		log:        log,
		ghostUsers: make(map[string]struct{}),
	}
	empty := membership{}
	c.current.Store(&empty)
	return c
}

// IsMember reports whether uid is a supplementary member of gid according
// to the most recently completed successful refresh.
func (c *Cache) IsMember(uid, gid uint32) bool {
	m := c.current.Load()
	if m == nil {
		return false
	}
	return (*m).isMember(uid, gid)
}

// Refresh rebuilds the membership map by scanning the group file, unless
// the mtime-skip optimization is enabled and the file has not changed
// since the last successful build. It is safe to call concurrently; calls
// serialize on an internal mutex.
func (c *Cache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fi, err := os.Stat(c.groupFile)
	if err != nil {
		c.log.Warnf("group cache: cannot stat %s: %v", c.groupFile, err)
		return err
	}
	mtime := fi.ModTime().Unix()
	if c.checkMtime && c.lastBuilt && mtime == c.lastMtime {
		return nil
	}

	f, err := os.Open(c.groupFile)
	if err != nil {
		c.log.Warnf("group cache: cannot open %s: %v", c.groupFile, err)
		return err
	}
	defer f.Close()

	c.userToUID = make(map[string]uint32)
	newGhosts := make(map[string]struct{})
	next := make(membership)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 4 {
			continue
		}
		gid64, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			continue
		}
		gid := uint32(gid64)
		members := strings.Split(fields[3], ",")
		for _, name := range members {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			uid, ok := c.resolveUID(name)
			if !ok {
				newGhosts[name] = struct{}{}
				continue
			}
			next[uid] = append(next[uid], gid)
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Warnf("group cache: error reading %s: %v", c.groupFile, err)
		return err
	}

	for uid, gids := range next {
		gids = dedupSorted(gids)
		next[uid] = gids
	}

	c.logGhostTransitions(newGhosts)
	c.ghostUsers = newGhosts

	c.current.Store(&next)
	c.lastMtime = mtime
	c.lastBuilt = true
	return nil
}

// logGhostTransitions logs a username exactly once as it newly goes
// missing from successful resolution, and again (informationally) once it
// resolves again -- matching original_source/src/munged/gids.c's
// ghost-hash add/remove behavior rather than logging on every occurrence
// in the member list.
func (c *Cache) logGhostTransitions(newGhosts map[string]struct{}) {
	for user := range newGhosts {
		if _, already := c.ghostUsers[user]; !already {
			c.log.Warnf("group cache: user %q in group file has no matching UID", user)
		}
	}
	for user := range c.ghostUsers {
		if _, stillGhost := newGhosts[user]; !stillGhost {
			c.log.Infof("group cache: user %q resolved again", user)
		}
	}
}

func (c *Cache) resolveUID(name string) (uint32, bool) {
	if uid, ok := c.userToUID[name]; ok {
		return uid, true
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, false
	}
	uid64, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, false
	}
	uid := uint32(uid64)
	c.userToUID[name] = uid
	return uid, true
}

func dedupSorted(gids []uint32) []uint32 {
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })
	out := gids[:0]
	var last uint32
	haveLast := false
	for _, g := range gids {
		if haveLast && g == last {
			continue
		}
		out = append(out, g)
		last = g
		haveLast = true
	}
	return out
}
