package engine

import (
	"fmt"
	"log/slog"

	"github.com/xfyecn/sitewhere-master-sub001/config"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
	mqttrecv "github.com/xfyecn/sitewhere-master-sub001/receiver/mqtt"
	"github.com/xfyecn/sitewhere-master-sub001/receiver/queue"
	"github.com/xfyecn/sitewhere-master-sub001/receiver/socket"
	udprecv "github.com/xfyecn/sitewhere-master-sub001/receiver/udp"
	wsrecv "github.com/xfyecn/sitewhere-master-sub001/receiver/websocket"
)

func registerSourceFactories(r *Registry) {
	mustRegister(
		r.RegisterReceiver("socket", socketReceiver),
		r.RegisterReceiver("udp", udpReceiver),
		r.RegisterReceiver("mqtt", mqttReceiver),
		r.RegisterReceiver("websocket", websocketReceiver),
		r.RegisterReceiver("jetstream-queue", jetStreamReceiver),
		r.RegisterReceiver("kafka-queue", kafkaReceiver),
		r.RegisterReceiver("redis-queue", redisReceiver),

		r.RegisterDecoder("json", jsonDecoder),
		r.RegisterDecoder("measurements", measurementsDecoder),
		r.RegisterDecoder("logging", loggingDecoder),
		r.RegisterDecoder("composite", compositeDecoder),
	)
}

type socketParams struct {
	socket.Config `yaml:",inline"`
	// Framing is "read-all" (one payload per connection) or "delimited"
	// (one payload per line).
	Framing    string `yaml:"framing"`
	MaxPayload int64  `yaml:"max_payload"`
	MaxLine    int    `yaml:"max_line"`
}

func socketReceiver(bc *Context, params config.Params) (receiver.Receiver[[]byte], error) {
	p := socketParams{Framing: "read-all"}
	if err := params.Decode(&p); err != nil {
		return nil, err
	}

	var factory socket.HandlerFactory
	switch p.Framing {
	case "read-all":
		factory = socket.NewReadAllFactory(bc.Deps, p.MaxPayload)
	case "delimited":
		factory = socket.NewDelimitedFactory(bc.Deps, p.MaxLine)
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: framing %q", errors.ErrInvalidConfig, p.Framing),
			"socket-receiver", "build", "framing")
	}
	return socket.New(bc.Deps, p.Config, factory), nil
}

func udpReceiver(bc *Context, params config.Params) (receiver.Receiver[[]byte], error) {
	var cfg udprecv.Config
	if err := params.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return udprecv.New(bc.Deps, cfg), nil
}

func mqttReceiver(bc *Context, params config.Params) (receiver.Receiver[[]byte], error) {
	cfg := mqttrecv.Config{
		Broker:   bc.Config.MQTT.Broker,
		Username: bc.Config.MQTT.Username,
		Password: bc.Config.MQTT.Password,
	}
	if err := params.Decode(&cfg); err != nil {
		return nil, err
	}
	return mqttrecv.New(bc.Deps, cfg), nil
}

func websocketReceiver(bc *Context, params config.Params) (receiver.Receiver[[]byte], error) {
	var cfg wsrecv.Config
	if err := params.Decode(&cfg); err != nil {
		return nil, err
	}
	return wsrecv.New(bc.Deps, cfg), nil
}

func jetStreamReceiver(bc *Context, params config.Params) (receiver.Receiver[[]byte], error) {
	if bc.Deps.NATSClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "jetstream-queue", "build", "nats connection")
	}
	cfg := queue.JetStreamConfig{Consumer: "pipeline-" + bc.Tenant.ID}
	if err := params.Decode(&cfg); err != nil {
		return nil, err
	}
	return queue.New[[]byte](bc.Deps, "jetstream-queue-receiver", queue.NewJetStreamSource(bc.Deps.NATSClient, cfg)), nil
}

func kafkaReceiver(bc *Context, params config.Params) (receiver.Receiver[[]byte], error) {
	cfg := queue.KafkaConfig{
		Brokers: bc.Config.Kafka.Brokers,
		GroupID: "pipeline-" + bc.Tenant.ID,
	}
	if err := params.Decode(&cfg); err != nil {
		return nil, err
	}
	return queue.New[[]byte](bc.Deps, "kafka-queue-receiver", queue.NewKafkaSource(cfg)), nil
}

func redisReceiver(bc *Context, params config.Params) (receiver.Receiver[[]byte], error) {
	cfg := queue.RedisConfig{
		Addr:     bc.Config.Redis.Addr,
		Password: bc.Config.Redis.Password,
		DB:       bc.Config.Redis.DB,
	}
	if err := params.Decode(&cfg); err != nil {
		return nil, err
	}
	return queue.New[[]byte](bc.Deps, "redis-queue-receiver", queue.NewRedisSource(cfg)), nil
}

func jsonDecoder(bc *Context, params config.Params) (decoder.Decoder[[]byte], error) {
	var p struct {
		Schema string `yaml:"schema"`
	}
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	var opts []decoder.JSONOption
	if p.Schema != "" {
		opts = append(opts, decoder.WithSchema(p.Schema))
	}
	return decoder.NewJSONDecoder(bc.Deps, opts...), nil
}

func measurementsDecoder(bc *Context, params config.Params) (decoder.Decoder[[]byte], error) {
	if err := params.Decode(&struct{}{}); err != nil {
		return nil, err
	}
	return decoder.NewMeasurementsDecoder(bc.Deps), nil
}

func loggingDecoder(bc *Context, params config.Params) (decoder.Decoder[[]byte], error) {
	p := struct {
		Level string `yaml:"level"`
	}{Level: "info"}
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(p.Level)); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "logging-decoder", "build", "level")
	}
	return decoder.NewLoggingDecoder(bc.Deps, level), nil
}

type extractorParams struct {
	// Type is "json-field" or "topic".
	Type    string `yaml:"type"`
	Field   string `yaml:"field"`
	Segment int    `yaml:"segment"`
}

type choiceParams struct {
	// Specifications selects devices by specification token. An empty list
	// matches every device.
	Specifications []string               `yaml:"specifications"`
	Decoder        config.ComponentConfig `yaml:"decoder"`
}

type compositeParams struct {
	Extractor extractorParams `yaml:"extractor"`
	Choices   []choiceParams  `yaml:"choices"`
}

// compositeDecoder builds the choice decoders through the registry, so any
// registered decoder type can be a choice.
func compositeDecoder(bc *Context, params config.Params) (decoder.Decoder[[]byte], error) {
	p := compositeParams{Extractor: extractorParams{Type: "json-field", Field: "hardwareId"}}
	if err := params.Decode(&p); err != nil {
		return nil, err
	}

	var extractor decoder.MetadataExtractor[[]byte]
	switch p.Extractor.Type {
	case "json-field":
		extractor = decoder.NewJSONFieldExtractor(bc.Deps, p.Extractor.Field)
	case "topic":
		extractor = decoder.NewTopicExtractor(bc.Deps, p.Extractor.Segment)
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: extractor %q", errors.ErrInvalidConfig, p.Extractor.Type),
			"composite-decoder", "build", "extractor")
	}

	choices := make([]decoder.Choice[[]byte], 0, len(p.Choices))
	for i, c := range p.Choices {
		d, err := bc.BuildDecoder(c.Decoder)
		if err != nil {
			return nil, fmt.Errorf("choice %d: %w", i, err)
		}
		if len(c.Specifications) == 0 {
			choices = append(choices, decoder.DefaultChoice(d))
			continue
		}
		choices = append(choices, decoder.SpecificationChoice(d, c.Specifications...))
	}
	return decoder.NewComposite(bc.Deps, bc.Resolver, extractor, choices...), nil
}
