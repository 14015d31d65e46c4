// Package config loads the bridge configuration file.
//
// The file is YAML. Every section is optional; missing values keep the
// defaults returned by Default. Durations are written as Go duration
// strings such as "5s" or "1m30s".
//
//	device:
//	  address: 192.168.1.20
//	  token: 0123abcd
//	client:
//	  heartbeat_interval: 5s
//	  reconnect_delay: 1s
//	logging:
//	  level: info
//	surface:
//	  midi_in: Launchpad Mini
//	  midi_out: Launchpad Mini
//	  bindings:
//	    - row: 0
//	      col: 0
//	      context: logic-1
//	      path: control/logics/1
package config
