package common

const (
	ComponentSupervisor = "supervisor"
	ComponentWatcher    = "watcher"
	ComponentIndexer    = "indexer"
	ComponentRPC        = "rpc"
	ComponentStore      = "store"
	ComponentNotifier   = "notifier"
	ComponentReplay     = "replay"
	ComponentMaintain   = "maintenance"
)

var AllComponents = map[string]struct{}{
	ComponentSupervisor: {},
	ComponentWatcher:    {},
	ComponentIndexer:    {},
	ComponentRPC:        {},
	ComponentStore:      {},
	ComponentNotifier:   {},
	ComponentReplay:     {},
	ComponentMaintain:   {},
}
