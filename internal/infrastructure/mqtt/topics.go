package mqtt

import "fmt"

// TopicPrefix is the root of every nodeward topic.
const TopicPrefix = "nodeward"

// ActionStop is the control action that stops the supervised process.
const ActionStop = "stop"

// Topics builds nodeward topic names.
//
//	mqtt.Topics{}.Lifecycle("app", "started") // nodeward/lifecycle/app/started
type Topics struct{}

// Lifecycle is where one lifecycle event of instance is published.
func (Topics) Lifecycle(instance, event string) string {
	return fmt.Sprintf("%s/lifecycle/%s/%s", TopicPrefix, instance, event)
}

// State holds the retained latest state of instance.
func (Topics) State(instance string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, instance)
}

// Control is where a remote action for instance arrives, e.g.
// nodeward/control/app/stop.
func (Topics) Control(instance, action string) string {
	return fmt.Sprintf("%s/control/%s/%s", TopicPrefix, instance, action)
}

// ControlFilter matches every control action for instance.
func (Topics) ControlFilter(instance string) string {
	return Topics{}.Control(instance, "+")
}

// SystemStatus carries the retained online/offline presence and the will.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
