// Package config loads the NFV manager configuration.
//
// Two layouts are accepted. The INI layout keeps the section and key names
// operators already use:
//
//	[nfvo]
//	ip = 127.0.0.1
//	port = 8080
//	username = admin
//	password = openbaton
//	https = false
//
//	[system]
//	update-delay = 10
//	temp-csar-location = /etc/softfire/experiment-nsd-csar
//	available-nsds-file-path = /etc/softfire/available-nsds.json
//	softfire-public-key = /etc/softfire/softfire-key.pub
//	openstack-credentials-file = /etc/softfire/openstack-credentials.json
//
//	[database]
//	url = sqlite:////var/lib/softfire/nfv-manager.db
//
// The YAML layout (also used for .json files) mirrors the Config struct and
// adds the teardown, logging, metrics, tracing and policy sections. Values
// missing from either layout keep the defaults from Default. The result is
// checked with go-playground/validator struct tags.
package config
