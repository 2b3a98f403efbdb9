package registry

import (
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UpgradeFunc rewrites a raw document from one schema version to the next, in place.
type UpgradeFunc func(doc map[string]types.AttributeValue) error

type upgradeKey struct {
	name    string
	version int
}

// upgradeRegistry holds the step upgraders, keyed by schema name and source version.
var (
	upgradeRegistry = make(map[upgradeKey]UpgradeFunc)
	upgradeMu       sync.RWMutex
)

// RegisterUpgrader registers fn to upgrade documents of schema name from
// fromVersion to fromVersion+1.
// If an upgrader is already registered for the step, it panics to prevent accidental overrides.
func RegisterUpgrader(name string, fromVersion int, fn UpgradeFunc) {
	k := upgradeKey{name: name, version: fromVersion}

	upgradeMu.Lock()
	defer upgradeMu.Unlock()
	if _, exists := upgradeRegistry[k]; exists {
		panic(fmt.Sprintf("upgrade registry: upgrader for %q version %d already registered", name, fromVersion))
	}
	upgradeRegistry[k] = fn
}

// GetUpgrader returns the upgrader for schema name at fromVersion, if any.
func GetUpgrader(name string, fromVersion int) (UpgradeFunc, bool) {
	upgradeMu.RLock()
	defer upgradeMu.RUnlock()
	fn, ok := upgradeRegistry[upgradeKey{name: name, version: fromVersion}]
	return fn, ok
}

// Upgrade applies the registered upgraders to doc from version from up to
// version to. Every step needs an upgrader.
func Upgrade(name string, doc map[string]types.AttributeValue, from, to int) error {
	for v := from; v < to; v++ {
		fn, ok := GetUpgrader(name, v)
		if !ok {
			return fmt.Errorf("upgrade %s from version %d: no upgrader registered", name, v)
		}
		if err := fn(doc); err != nil {
			return fmt.Errorf("upgrade %s from version %d: %w", name, v, err)
		}
	}
	return nil
}
