package downloader

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// Keeps downloads in memory until their TTL runs out.
type Memory struct {
	Now func() time.Time

	mutex   sync.Mutex
	entries map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{
		Now:     time.Now,
		entries: map[string]memoryEntry{},
	}
}

func (m *Memory) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {

	if options.Cache {
		m.mutex.Lock()
		entry, found := m.entries[url]
		m.mutex.Unlock()

		if found && entry.expires.After(m.Now()) {
			return entry.data, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		m.mutex.Lock()
		m.entries[url] = memoryEntry{
			data:    body,
			expires: m.Now().Add(options.CacheTTL),
		}
		m.mutex.Unlock()
	}

	return body, nil
}
