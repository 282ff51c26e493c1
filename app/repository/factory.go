package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles every repository backed by the same DB handle.
type Repositories struct {
	JobPayment     JobPaymentRepository
	Membership     MembershipRepository
	WebhookEvent   WebhookEventRepository
	ConnectAccount ConnectAccountRepository
	User           UserRepository
}

// NewRepositories creates all repositories over one GORM handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		JobPayment:     NewJobPaymentRepository(db),
		Membership:     NewMembershipRepository(db),
		WebhookEvent:   NewWebhookEventRepository(db),
		ConnectAccount: NewConnectAccountRepository(db),
		User:           NewUserRepository(db),
	}
}

// Factory manages repository instances and ensures they are singletons.
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory.
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// GetRepositories returns the singleton repository bundle.
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

var (
	globalFactory   *Factory
	globalFactoryMu sync.Mutex
)

// InitializeGlobalFactory wires the process-wide factory once at startup.
func InitializeGlobalFactory(db *gorm.DB) {
	globalFactoryMu.Lock()
	defer globalFactoryMu.Unlock()
	globalFactory = NewFactory(db)
}

// GetGlobalFactory returns the process-wide factory. Panics when called
// before InitializeGlobalFactory; that is a wiring bug, not a runtime
// condition.
func GetGlobalFactory() *Factory {
	globalFactoryMu.Lock()
	defer globalFactoryMu.Unlock()
	if globalFactory == nil {
		panic("repository: global factory not initialized")
	}
	return globalFactory
}
