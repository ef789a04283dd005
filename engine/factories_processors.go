package engine

import (
	"github.com/xfyecn/sitewhere-master-sub001/config"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/processor/inbound"
	"github.com/xfyecn/sitewhere-master-sub001/processor/outbound"
	"github.com/xfyecn/sitewhere-master-sub001/publisher"
	filepub "github.com/xfyecn/sitewhere-master-sub001/publisher/file"
	kafkapub "github.com/xfyecn/sitewhere-master-sub001/publisher/kafka"
	mqttpub "github.com/xfyecn/sitewhere-master-sub001/publisher/mqtt"
	natspub "github.com/xfyecn/sitewhere-master-sub001/publisher/nats"
	restpub "github.com/xfyecn/sitewhere-master-sub001/publisher/rest"
)

func registerProcessorFactories(r *Registry) {
	mustRegister(
		r.RegisterInbound("registration", registrationProcessor),
		r.RegisterInbound("event-storage", storageProcessor),
		r.RegisterInbound("streams", streamProcessor),

		r.RegisterOutbound("mqtt-publisher", mqttPublisher),
		r.RegisterOutbound("nats-publisher", natsPublisher),
		r.RegisterOutbound("kafka-publisher", kafkaPublisher),
		r.RegisterOutbound("rest-publisher", restPublisher),
		r.RegisterOutbound("file-publisher", filePublisher),
	)
}

func registrationProcessor(bc *Context, params config.Params) (inbound.Processor, error) {
	var p struct {
		DefaultSpecification string `yaml:"default_specification"`
	}
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	return inbound.NewRegistrationProcessor(bc.Deps, bc.Devices, p.DefaultSpecification), nil
}

func storageProcessor(bc *Context, params config.Params) (inbound.Processor, error) {
	if err := params.Decode(&struct{}{}); err != nil {
		return nil, err
	}
	return inbound.NewStorageProcessor(bc.Deps, bc.Resolver, bc.Events, bc.Outbound), nil
}

// streamProcessor sends chunks back through the first outbound publisher
// that can deliver them.
func streamProcessor(bc *Context, params config.Params) (inbound.Processor, error) {
	if err := params.Decode(&struct{}{}); err != nil {
		return nil, err
	}
	return inbound.NewStreamProcessor(bc.Deps, bc.Resolver, bc.Streams, bc.Sender), nil
}

// routing selects how a publisher routes events. Exactly one of Topic,
// Route and Routes must be set; the publisher enforces it on start.
type routing struct {
	Topic       string   `yaml:"topic"`
	Route       string   `yaml:"route"`
	Routes      []string `yaml:"routes"`
	StreamRoute string   `yaml:"stream_route"`
}

func (r routing) options() []publisher.Option {
	var opts []publisher.Option
	if r.Topic != "" {
		opts = append(opts, publisher.WithTopic(r.Topic))
	}
	if r.Route != "" {
		opts = append(opts, publisher.WithRouteBuilder(publisher.TemplateRouteBuilder{Template: publisher.Template(r.Route)}))
	}
	if len(r.Routes) > 0 {
		templates := make([]publisher.Template, len(r.Routes))
		for i, t := range r.Routes {
			templates[i] = publisher.Template(t)
		}
		opts = append(opts, publisher.WithMulticaster(publisher.TemplateMulticaster{Templates: templates}))
	}
	if r.StreamRoute != "" {
		opts = append(opts, publisher.WithStreamRoute(r.StreamRoute))
	}
	return opts
}

type mqttPublisherParams struct {
	routing        `yaml:",inline"`
	mqttpub.Config `yaml:",inline"`
}

func mqttPublisher(bc *Context, name string, params config.Params) (outbound.Processor, error) {
	p := mqttPublisherParams{Config: mqttpub.Config{
		Broker:   bc.Config.MQTT.Broker,
		Username: bc.Config.MQTT.Username,
		Password: bc.Config.MQTT.Password,
	}}
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	return publisher.New(bc.Deps, name, mqttpub.New(p.Config), p.options()...), nil
}

type natsPublisherParams struct {
	routing        `yaml:",inline"`
	natspub.Config `yaml:",inline"`
}

// natsPublisher shares the process NATS connection unless params name their
// own URL.
func natsPublisher(bc *Context, name string, params config.Params) (outbound.Processor, error) {
	var p natsPublisherParams
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	client := bc.Deps.NATSClient
	if p.URL != "" {
		client = nil
	} else if client == nil {
		p.URL = bc.Config.NATS.URL
	}
	if client == nil && p.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, name, "build", "nats url")
	}
	return publisher.New(bc.Deps, name, natspub.New(client, p.Config), p.options()...), nil
}

type kafkaPublisherParams struct {
	routing         `yaml:",inline"`
	kafkapub.Config `yaml:",inline"`
}

func kafkaPublisher(bc *Context, name string, params config.Params) (outbound.Processor, error) {
	p := kafkaPublisherParams{Config: kafkapub.Config{Brokers: bc.Config.Kafka.Brokers}}
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	return publisher.New(bc.Deps, name, kafkapub.New(p.Config), p.options()...), nil
}

type restPublisherParams struct {
	routing        `yaml:",inline"`
	restpub.Config `yaml:",inline"`
}

func restPublisher(bc *Context, name string, params config.Params) (outbound.Processor, error) {
	var p restPublisherParams
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	return publisher.New(bc.Deps, name, restpub.New(p.Config, nil), p.options()...), nil
}

type filePublisherParams struct {
	routing        `yaml:",inline"`
	filepub.Config `yaml:",inline"`
}

func filePublisher(bc *Context, name string, params config.Params) (outbound.Processor, error) {
	var p filePublisherParams
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	return publisher.New(bc.Deps, name, filepub.New(p.Config, bc.Deps.GetLogger()), p.options()...), nil
}
