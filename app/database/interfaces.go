package database

type DiscoveryRepository interface {
	GetByOrigin(origin string) (*DiscoveryCacheEntry, error)
	Upsert(entry DiscoveryCacheEntry) error
	List(limit int) ([]DiscoveryCacheEntry, error)
	Stats() (*CacheStats, error)
	Count() (int, error)
}
