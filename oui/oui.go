// Package oui resolves MAC address prefixes to vendor names using the IEEE OUI registry.
package oui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultURL - IEEE OUI registry in text form.
const DefaultURL = "https://standards-oui.ieee.org/oui/oui.txt"

var ouiLinePattern = regexp.MustCompile(`(?i)^\s*([0-9A-F]{2})[-\s:]?([0-9A-F]{2})[-\s:]?([0-9A-F]{2})\s+\((hex|base\s+16)\)\s+(.+?)\s*$`)

var hexPairPattern = regexp.MustCompile(`^[0-9a-f]{2}$`)

// Config - Where the registry file lives and whether to download it when missing.
type Config struct {
	Path       string `json:"path" toml:"path"`
	AutoUpdate bool   `json:"auto_update" toml:"auto_update"`
	URL        string `json:"url" toml:"url"`
}

// Resolver - Lazily loaded prefix to vendor table. Every failure leaves lookups returning empty.
// A missing registry is downloaded in the background, lookups return empty until it is in.
type Resolver struct {
	config  Config
	timeout time.Duration

	mutex   sync.RWMutex
	loaded  bool
	loading bool
	vendors map[string]string
	lastErr error
}

// NewResolver - Create a resolver. Nothing is loaded until the first lookup.
func NewResolver(config Config) *Resolver {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Path == "" {
		if cacheDir, err := os.UserCacheDir(); err == nil && cacheDir != "" {
			config.Path = filepath.Join(cacheDir, "pfbridge", "oui.txt")
		} else {
			config.Path = filepath.Join(os.TempDir(), "pfbridge", "oui.txt")
		}
	}
	return &Resolver{
		config:  config,
		timeout: 10 * time.Second,
	}
}

// NewResolverFromReader - Create a resolver with the registry parsed from the reader.
func NewResolverFromReader(reader io.Reader) (*Resolver, error) {
	vendors, err := parse(reader)
	if err != nil {
		return nil, err
	}
	return &Resolver{loaded: true, vendors: vendors}, nil
}

// Lookup - Vendor for the MAC address, empty if unknown.
func (resolver *Resolver) Lookup(mac string) string {
	resolver.ensureLoaded()
	prefix := normalizePrefix(mac)
	if prefix == "" {
		return ""
	}
	resolver.mutex.RLock()
	defer resolver.mutex.RUnlock()
	return resolver.vendors[prefix]
}

// LastError - Why the last load failed, if it did.
func (resolver *Resolver) LastError() error {
	resolver.mutex.RLock()
	defer resolver.mutex.RUnlock()
	return resolver.lastErr
}

// Update - Download the registry and reload it.
func (resolver *Resolver) Update(ctx context.Context) error {
	if err := resolver.download(ctx); err != nil {
		resolver.mutex.Lock()
		resolver.lastErr = err
		resolver.mutex.Unlock()
		return err
	}
	vendors, err := resolver.readFile()
	resolver.finishLoad(vendors, err)
	return err
}

// Loaded - Whether a load finished, successful or not.
func (resolver *Resolver) Loaded() bool {
	resolver.mutex.RLock()
	defer resolver.mutex.RUnlock()
	return resolver.loaded
}

// ensureLoaded - Start the first load. Reading and downloading happen outside the lock.
func (resolver *Resolver) ensureLoaded() {
	resolver.mutex.RLock()
	done := resolver.loaded || resolver.loading
	resolver.mutex.RUnlock()
	if done {
		return
	}

	resolver.mutex.Lock()
	if resolver.loaded || resolver.loading {
		resolver.mutex.Unlock()
		return
	}
	resolver.loading = true
	resolver.mutex.Unlock()

	if _, err := os.Stat(resolver.config.Path); errors.Is(err, os.ErrNotExist) && resolver.config.AutoUpdate {
		go func() {
			if err := resolver.download(context.Background()); err != nil {
				log.WithError(err).Debug("Failed to download OUI registry")
				resolver.finishLoad(nil, err)
				return
			}
			resolver.finishLoad(resolver.readFile())
		}()
		return
	}
	resolver.finishLoad(resolver.readFile())
}

func (resolver *Resolver) readFile() (map[string]string, error) {
	file, err := os.Open(resolver.config.Path)
	if err != nil {
		log.WithError(err).Debug("OUI registry not available")
		return nil, err
	}
	defer file.Close()

	vendors, err := parse(file)
	if err != nil {
		log.WithError(err).Debug("Failed to parse OUI registry")
		return nil, err
	}
	log.WithField("prefixes", len(vendors)).Debug("Loaded OUI registry")
	return vendors, nil
}

func (resolver *Resolver) finishLoad(vendors map[string]string, err error) {
	if vendors == nil {
		vendors = map[string]string{}
	}
	resolver.mutex.Lock()
	defer resolver.mutex.Unlock()
	resolver.loaded = true
	resolver.loading = false
	resolver.vendors = vendors
	resolver.lastErr = err
}

func (resolver *Resolver) download(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(resolver.config.Path), 0o755); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, resolver.timeout)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, resolver.config.URL, nil)
	if err != nil {
		return err
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("failed to download OUI registry: %s", response.Status)
	}

	temporary := resolver.config.Path + ".tmp"
	output, err := os.Create(temporary)
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, response.Body); err != nil {
		output.Close()
		os.Remove(temporary)
		return err
	}
	if err := output.Close(); err != nil {
		os.Remove(temporary)
		return err
	}
	return os.Rename(temporary, resolver.config.Path)
}

// normalizePrefix - First three octets as "AA:BB:CC". Accepts ':' or '-' separators and octets with the leading zero dropped.
func normalizePrefix(mac string) string {
	mac = strings.TrimSpace(mac)
	separator := ":"
	if strings.Contains(mac, "-") && !strings.Contains(mac, ":") {
		separator = "-"
	}
	octets := strings.Split(mac, separator)
	if len(octets) < 3 {
		return ""
	}
	prefix := make([]string, 0, 3)
	for _, octet := range octets[:3] {
		octet = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(octet)), "0x")
		if len(octet) == 1 {
			octet = "0" + octet
		}
		if !hexPairPattern.MatchString(octet) {
			return ""
		}
		prefix = append(prefix, strings.ToUpper(octet))
	}
	return strings.Join(prefix, ":")
}

func parse(reader io.Reader) (map[string]string, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 16*1024), 256*1024)
	vendors := make(map[string]string)
	for scanner.Scan() {
		match := ouiLinePattern.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		vendor := strings.TrimSpace(match[5])
		if vendor == "" {
			continue
		}
		vendors[strings.ToUpper(match[1]+":"+match[2]+":"+match[3])] = vendor
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vendors, nil
}
