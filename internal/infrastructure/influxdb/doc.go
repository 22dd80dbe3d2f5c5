// Package influxdb writes supervised process lifecycle events to InfluxDB.
//
// Each event (starting, started, stopped, error) becomes one point in the
// process_lifecycle measurement, tagged by instance and event, with the exit
// code and the captured output sizes as fields:
//
//	client, err := influxdb.Connect(cfg.InfluxDB, func(err error) {
//	    log.Error("influxdb write failed", "error", err)
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLifecycle(influxdb.LifecycleSample{Instance: "app", Event: "started"})
package influxdb
