package webintel

import (
	"context"
	"time"
)

// AccountStore durably persists full credit account records. Load returns
// (nil, nil) for a wallet that was never initialized.
type AccountStore interface {
	Load(ctx context.Context, wallet string) (*CreditAccount, error)
	Save(ctx context.Context, account *CreditAccount) error
}

// MonitorStore persists monitor definitions plus a separate owner index.
// The index is maintained by dual writes and is not transactional with
// the monitor record.
type MonitorStore interface {
	Put(ctx context.Context, def MonitorDefinition) error
	Get(ctx context.Context, id string) (MonitorDefinition, error)
	Delete(ctx context.Context, id string) error
	AppendOwnerIndex(ctx context.Context, ownerID, monitorID string) error
	RemoveOwnerIndex(ctx context.Context, ownerID, monitorID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]string, error)
	ListActive(ctx context.Context) ([]MonitorDefinition, error)
}

// StatsStore is a shared, eventually-consistent key/value store with
// per-key TTL. Get returns (nil, nil) for absent or expired keys.
type StatsStore interface {
	Get(ctx context.Context, providerID string) (*ProviderStats, error)
	Set(ctx context.Context, providerID string, stats ProviderStats, ttl time.Duration) error
}

// FetchProvider fetches one URL through a specific provider.
type FetchProvider interface {
	Descriptor() ProviderDescriptor
	Fetch(ctx context.Context, url string, timeout time.Duration) (Page, error)
}

// Transformer converts a raw document body into a Page.
type Transformer interface {
	Transform(url string, body []byte) (Page, error)
}

// SnapshotStore archives the last fetched content per monitor so webhook
// payloads can carry a diff. Get returns (nil, nil) when no snapshot exists.
type SnapshotStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Publisher pushes check events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notifier delivers a webhook event to a destination URL.
type Notifier interface {
	Notify(ctx context.Context, webhookURL string, event WebhookEvent) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces transaction and monitor IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for content change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

