package journeys

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tidbyt.dev/journeys/config"
	"tidbyt.dev/journeys/downloader"
	"tidbyt.dev/journeys/parse"
	"tidbyt.dev/journeys/storage"
)

const (
	DefaultImportTimeout = 60 * time.Second
	DefaultImportMaxSize = 800 << 20 // 800 MB
)

var ErrNoNetwork = errors.New("no such network")

// Manager imports networks into storage and keeps the indexes of
// loaded networks around.
type Manager struct {
	ImportTimeout time.Duration
	ImportMaxSize int
	Downloader    downloader.Downloader

	// Downloads are reused for this long. Zero disables caching.
	ImportCacheTTL time.Duration

	Logger        *slog.Logger

	storage storage.Storage

	mutex    sync.Mutex
	networks map[string]*Network
	imported map[string]importRecord
}

type importRecord struct {
	hash    string
	summary *parse.NetworkSummary
}

// Creates a Manager on top of the given storage.
func NewManager(s storage.Storage) *Manager {
	return &Manager{
		ImportTimeout: DefaultImportTimeout,
		ImportMaxSize: DefaultImportMaxSize,
		Downloader:    downloader.NewMemory(),
		Logger:        slog.Default(),

		storage:  s,
		networks: map[string]*Network{},
		imported: map[string]importRecord{},
	}
}

// Parses a zipped network export into storage under the given
// name, replacing any network by that name. Importing the same data
// twice is a no-op.
func (m *Manager) ImportNetwork(name string, data []byte) (*parse.NetworkSummary, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(data))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if record, found := m.imported[name]; found && record.hash == hash {
		m.Logger.Info("network unchanged", "network", name, "hash", hash[:12])
		return record.summary, nil
	}

	writer, err := m.storage.GetWriter(name)
	if err != nil {
		return nil, fmt.Errorf("getting writer: %w", err)
	}

	summary, err := parse.ParseNetwork(writer, data)
	if err != nil {
		writer.Close()
		delete(m.networks, name)
		delete(m.imported, name)
		return nil, fmt.Errorf("parsing: %w", err)
	}

	// Indexes of the old data are stale
	delete(m.networks, name)
	m.imported[name] = importRecord{hash: hash, summary: summary}

	m.Logger.Info(
		"imported network",
		"network", name,
		"hash", hash[:12],
		"nodes", summary.Nodes,
		"relationships", summary.Relationships,
		"services", summary.Services,
		"calendar_start", summary.CalendarStartDate,
		"calendar_end", summary.CalendarEndDate,
	)

	return summary, nil
}

// Downloads a network export and imports it.
func (m *Manager) ImportNetworkURL(
	ctx context.Context,
	name string,
	url string,
	headers map[string]string,
) (*parse.NetworkSummary, error) {

	body, err := m.Downloader.Get(ctx, url, headers, downloader.GetOptions{
		Timeout:  m.ImportTimeout,
		MaxSize:  m.ImportMaxSize,
		Cache:    m.ImportCacheTTL > 0,
		CacheTTL: m.ImportCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("downloading network at %s: %w", url, err)
	}

	return m.ImportNetwork(name, body)
}

// Loads a network from storage, building its indexes on first use.
func (m *Manager) LoadNetwork(ctx context.Context, name string) (*Network, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if network, found := m.networks[name]; found {
		return network, nil
	}

	names, err := m.storage.ListNetworks()
	if err != nil {
		return nil, fmt.Errorf("listing networks: %w", err)
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoNetwork, name)
	}

	graph, err := m.storage.GetReader(name)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}

	network, err := NewNetwork(ctx, name, graph, m.Logger)
	if err != nil {
		return nil, err
	}

	m.networks[name] = network
	return network, nil
}

// Calculator over a stored network.
func (m *Manager) Calculator(ctx context.Context, name string, cfg *config.Config, opts ...CalculatorOption) (*Calculator, error) {
	network, err := m.LoadNetwork(ctx, name)
	if err != nil {
		return nil, err
	}
	opts = append([]CalculatorOption{WithLogger(m.Logger)}, opts...)
	return NewCalculator(network, cfg, opts...), nil
}
