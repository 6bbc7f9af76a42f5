package procnet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/v3/process"
)

// Identity is the stable description of the binary behind a pid.
type Identity struct {
	Name        string
	ExePath     string
	DisplayName string
}

// IdentityResolver looks up process identity. Implementations must tolerate
// the process disappearing mid-lookup.
type IdentityResolver interface {
	Resolve(pid int32) (Identity, error)
}

// AppID returns the stable application identifier: the hex-encoded SHA-256
// of the lower-cased executable path, correlating relaunches of the same
// binary across pids. Falls back to the process name when the path is
// unknown.
func AppID(exePath, name string) string {
	source := strings.ToLower(exePath)
	if source == "" {
		source = strings.ToLower(name)
	}
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// placeholderIdentity stands in when identity resolution fails (process
// gone, access denied); the poll carries on with a degraded entry.
func placeholderIdentity(pid int32) Identity {
	name := "pid-" + strconv.Itoa(int(pid))
	return Identity{Name: name, DisplayName: name}
}

// GopsutilResolver resolves identity through the process table.
type GopsutilResolver struct{}

func (GopsutilResolver) Resolve(pid int32) (Identity, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return Identity{}, fmt.Errorf("open process %d: %w", pid, err)
	}
	ident := Identity{}
	ident.Name, err = p.Name()
	if err != nil {
		return Identity{}, fmt.Errorf("name of process %d: %w", pid, err)
	}
	// exe path needs more privilege than the name; a failure here still
	// yields a usable identity
	if exe, exeErr := p.Exe(); exeErr == nil {
		ident.ExePath = exe
	}
	ident.DisplayName = ident.Name
	return ident, nil
}

// identityCache keeps resolved identities for the lifetime of a tracked
// process so a busy poll does not re-resolve every pid.
type identityCache struct {
	resolver IdentityResolver
	cache    *gocache.Cache
}

func newIdentityCache(resolver IdentityResolver, ttl time.Duration) *identityCache {
	return &identityCache{
		resolver: resolver,
		cache:    gocache.New(ttl, 2*ttl),
	}
}

func (c *identityCache) get(pid int32) Identity {
	key := strconv.Itoa(int(pid))
	if cached, ok := c.cache.Get(key); ok {
		return cached.(Identity)
	}
	ident, err := c.resolver.Resolve(pid)
	if err != nil {
		ident = placeholderIdentity(pid)
	}
	c.cache.SetDefault(key, ident)
	return ident
}

func (c *identityCache) forget(pid int32) {
	c.cache.Delete(strconv.Itoa(int(pid)))
}
