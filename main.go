package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wmsflow/rulebus/agent"
	"github.com/wmsflow/rulebus/config"
	"github.com/wmsflow/rulebus/logger"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "rulebus", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage")
	cmd.Flags().Int("engine-partitions", 4, "number of rule engine partitions")
	cmd.Flags().Int("engine-capacity", 512, "per partition event queue capacity")
	cmd.Flags().String("stop-scope", "workflow", "scope of stop-on-match: workflow or global")
	cmd.Flags().Int("max-condition-depth", 5, "maximum nesting depth of rule conditions")
	cmd.Flags().Duration("action-timeout", 30*time.Second, "per action execution timeout")
	cmd.Flags().Duration("sla-sweep-interval", time.Minute, "interval between sla sweeps")
	cmd.Flags().Duration("sla-dedupe-window", 24*time.Hour, "window within which a breach is notified once")
	cmd.Flags().Int("bus-capacity", 1024, "per subscriber event queue capacity")
	cmd.Flags().String("audit-log-file", "", "file receiving the event audit trail, empty disables it")
	cmd.Flags().String("log-level", "info", "log level")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.EngineConfig.Partitions = viper.GetInt("engine-partitions")
	c.cfg.EngineConfig.Capacity = viper.GetInt("engine-capacity")
	c.cfg.EngineConfig.StopScope = viper.GetString("stop-scope")
	c.cfg.EngineConfig.MaxConditionDepth = viper.GetInt("max-condition-depth")
	c.cfg.ActionTimeout = viper.GetDuration("action-timeout")
	c.cfg.SlaConfig.SweepInterval = viper.GetDuration("sla-sweep-interval")
	c.cfg.SlaConfig.DedupeWindow = viper.GetDuration("sla-dedupe-window")
	c.cfg.BusCapacity = viper.GetInt("bus-capacity")
	c.cfg.AuditLogFile = viper.GetString("audit-log-file")
	logger.Configure(viper.GetString("log-level"))
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "rulebus",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
