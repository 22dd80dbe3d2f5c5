// Package mqtt connects nodeward to an MQTT broker.
//
// Topics, all under the nodeward/ prefix:
//
//	lifecycle/{instance}/{event}  one message per lifecycle event
//	state/{instance}              retained latest process state
//	control/{instance}/{action}   remote actions, currently "stop"
//	system/status                 retained presence and last will
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.HandleControl("app", func(action string, _ []byte) error {
//	    if action == mqtt.ActionStop {
//	        return sup.StopProcess()
//	    }
//	    return nil
//	})
package mqtt
