// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package publish sends thermometer readings to an MQTT broker.
//
// Topics are rooted at the configured topic:
//
//	<topic>/status                      online | offline
//	<topic>/<address>/temperature       °C, 2 decimals
//	<topic>/<address>/error             last error
//	<topic>/stats/{min,max,average}     °C
//	<topic>/stats/stddev                °C
package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/dsfamily/dsfamily"
	"github.com/GermanBionicSystems/dsfamily/internal/config"
)

// Client is the part of mqtt.Client used by Publisher.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher publishes readings under a root topic.
type Publisher struct {
	c        Client
	topic    string
	clientID string
	retain   bool
}

// New returns a Publisher using an already connected client.
func New(c Client, cfg *config.MQTTConfig) *Publisher {
	return &Publisher{c: c, topic: cfg.Topic, clientID: cfg.ClientID, retain: cfg.Retain}
}

// Connect creates the paho client and starts connecting in the background;
// messages published before the connection is up are queued by paho.
func Connect(cfg *config.MQTTConfig) (*Publisher, error) {
	if cfg.Server == "" {
		return nil, errors.New("publish: no server")
	}
	mqtt.ERROR = log.New(os.Stderr, "[mqtt] ", 0)
	mqtt.CRITICAL = log.New(os.Stderr, "[mqtt crit] ", 0)
	mqtt.WARN = log.New(os.Stderr, "[mqtt warn] ", 0)

	p := &Publisher{topic: cfg.Topic, clientID: cfg.ClientID, retain: cfg.Retain}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Server).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectRetry(true).
		SetKeepAlive(30*time.Second).
		SetWill(p.StatusTopic(), "offline", 1, true).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Printf("Connected to broker %s", cfg.Server)
			p.publish(p.StatusTopic(), "online", true)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("Lost connection with broker: %s", err)
		})
	c := mqtt.NewClient(opts)
	p.c = c
	t := c.Connect()
	go func() {
		<-t.Done()
		if err := t.Error(); err != nil {
			log.Println(errors.Wrap(err, "publish: connect"))
		}
	}()
	return p, nil
}

// StatusTopic is the availability topic.
func (p *Publisher) StatusTopic() string {
	return p.topic + "/status"
}

// Reading publishes the temperature of the device at a.
func (p *Publisher) Reading(a onewire.Address, r dsfamily.Raw) {
	p.publish(fmt.Sprintf("%s/%s/temperature", p.topic, Address(a)), celsius(r.Celsius()), p.retain)
}

// Error publishes the failure to read the device at a.
func (p *Publisher) Error(a onewire.Address, err error) {
	p.publish(fmt.Sprintf("%s/%s/error", p.topic, Address(a)), err.Error(), false)
}

// Stats publishes the aggregate values of a bus.
func (p *Publisher) Stats(min, max, avg dsfamily.Raw, stddev float64) {
	p.publish(p.topic+"/stats/min", celsius(min.Celsius()), p.retain)
	p.publish(p.topic+"/stats/max", celsius(max.Celsius()), p.retain)
	p.publish(p.topic+"/stats/average", celsius(avg.Celsius()), p.retain)
	p.publish(p.topic+"/stats/stddev", celsius(stddev/16), p.retain)
}

// Discovery announces every device to Home Assistant under prefix.
func (p *Publisher) Discovery(prefix string, addrs []onewire.Address) error {
	for _, a := range addrs {
		id := fmt.Sprintf("%s_%s", p.clientID, Address(a))
		msg, err := json.Marshal(map[string]string{
			"name":                fmt.Sprintf("%s %s", dsfamily.FamilyOf(a), Address(a)),
			"unique_id":           id,
			"state_topic":         fmt.Sprintf("%s/%s/temperature", p.topic, Address(a)),
			"availability_topic":  p.StatusTopic(),
			"device_class":        "temperature",
			"unit_of_measurement": "°C",
		})
		if err != nil {
			return errors.WithStack(err)
		}
		p.publish(fmt.Sprintf("%s/sensor/%s/config", strings.Trim(prefix, "/"), id), string(msg), true)
	}
	return nil
}

// Close announces the client offline and disconnects.
func (p *Publisher) Close() {
	t := p.c.Publish(p.StatusTopic(), 1, true, "offline")
	t.WaitTimeout(time.Second)
	p.c.Disconnect(250)
}

// Address formats a as the 16 hex digits used in topics.
func Address(a onewire.Address) string {
	return fmt.Sprintf("%016x", uint64(a))
}

//

func (p *Publisher) publish(topic, payload string, retain bool) {
	t := p.c.Publish(topic, 1, retain, payload)
	go func() {
		<-t.Done()
		if err := t.Error(); err != nil {
			log.Printf("publish %s: %v", topic, err)
		}
	}()
}

func celsius(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
