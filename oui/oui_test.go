package oui

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registry = `OUI/MA-L                                                    Organization
company_id                                                  Organization
                                                            Address

00-1B-21   (hex)		Intel Corporate
001B21     (base 16)		Intel Corporate
				Lot 8, Jalan Hi-Tech 2/3

FC-D0-8C   (hex)		Huawei Technologies Co.,Ltd
`

func TestLookup(t *testing.T) {
	resolver, err := NewResolverFromReader(strings.NewReader(registry))
	require.NoError(t, err)

	assert.Equal(t, "Intel Corporate", resolver.Lookup("00:1b:21:aa:bb:cc"))
	assert.Equal(t, "Intel Corporate", resolver.Lookup("0:1b:21:aa:bb:cc"))
	assert.Equal(t, "Huawei Technologies Co.,Ltd", resolver.Lookup("FC-D0-8C-01-02-03"))
	assert.Equal(t, "", resolver.Lookup("11:22:33:44:55:66"))
	assert.Equal(t, "", resolver.Lookup("garbage"))
}

func TestMissingRegistryIsEmpty(t *testing.T) {
	resolver := NewResolver(Config{Path: filepath.Join(t.TempDir(), "missing.txt")})
	assert.Equal(t, "", resolver.Lookup("00:1b:21:aa:bb:cc"))
	assert.Error(t, resolver.LastError())
}

func TestAutoUpdateDownloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		fmt.Fprint(response, registry)
	}))
	defer server.Close()

	resolver := NewResolver(Config{
		Path:       filepath.Join(t.TempDir(), "oui", "oui.txt"),
		AutoUpdate: true,
		URL:        server.URL,
	})
	require.Eventually(t, func() bool {
		return resolver.Lookup("00:1b:21:00:00:01") == "Intel Corporate"
	}, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, resolver.LastError())
}

func TestLookupDoesNotWaitForDownload(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		<-release
		fmt.Fprint(response, registry)
	}))
	defer server.Close()

	resolver := NewResolver(Config{
		Path:       filepath.Join(t.TempDir(), "oui.txt"),
		AutoUpdate: true,
		URL:        server.URL,
	})
	looked := make(chan string, 2)
	go func() {
		looked <- resolver.Lookup("00:1b:21:00:00:01")
		looked <- resolver.Lookup("fc:d0:8c:00:00:01")
	}()
	for i := 0; i < 2; i++ {
		select {
		case vendor := <-looked:
			assert.Equal(t, "", vendor)
		case <-time.After(time.Second):
			t.Fatal("Lookup waited for the download")
		}
	}
	assert.False(t, resolver.Loaded())

	close(release)
	require.Eventually(t, resolver.Loaded, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Intel Corporate", resolver.Lookup("00:1b:21:00:00:01"))
}

func TestUpdateFailureKeepsWorking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		http.Error(response, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resolver := NewResolver(Config{Path: filepath.Join(t.TempDir(), "oui.txt"), URL: server.URL})
	assert.Error(t, resolver.Update(context.Background()))
	assert.Equal(t, "", resolver.Lookup("00:1b:21:00:00:01"))
}
