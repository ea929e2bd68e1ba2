package main

import (
	"context"
	"flag"

	"pangalink/config"
	"pangalink/internal"
	"pangalink/internal/banks"
	"pangalink/services"
)

func main() {

	logger := internal.NewLogger("internal", false, nil)

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	logger.Info("using config file: " + *configPath)
	conf, err := config.GetConfig(*configPath)
	if err != nil {
		logger.Error("boot", err)
		return
	}

	var database services.Database
	var counter services.Counter
	if conf.Mongo.Enabled {
		mongo, err := internal.NewMongoClient(conf)
		if err != nil {
			logger.Error("mongo client", err)
			return
		}
		if err = mongo.EnsureIndexes(context.Background()); err != nil {
			logger.Error("mongo indexes", err)
			return
		}
		database, counter = mongo, mongo
		logger.Info("mongo client initialized")
	} else {
		memory := internal.NewMemoryStore(conf.Banklink.PagingCount)
		database, counter = memory, memory
		logger.Warn("mongo disabled, payments are kept in memory")
	}

	redisCounter, err := internal.NewRedisCounter(conf)
	if err != nil {
		logger.Error("redis counter", err)
		return
	}
	if redisCounter != nil {
		defer redisCounter.Close()
		counter = redisCounter
		logger.Info("transaction numbers are kept in redis")
	}

	registry, err := banks.Load(conf.Banklink.BanksFile)
	if err != nil {
		logger.Error("bank profiles", err)
		return
	}

	var metrics *internal.Metrics
	if conf.Metrics.Enabled {
		metrics = internal.NewMetrics()
	}

	callback := internal.NewCallbackClient()
	callback.SetMetrics(metrics)
	callback.SetLogger(internal.NewLogger("callback", conf.IsDebug, database))

	certificates := internal.NewCertificatePool(conf.Banklink.KeyWorkers)
	certificates.SetMetrics(metrics)

	payments := internal.NewPayments(conf, registry)
	payments.SetLogger(internal.NewLogger("payments", conf.IsDebug, database))
	payments.SetDatabase(database)
	payments.SetCounter(counter)
	payments.SetCallback(callback)
	payments.SetMetrics(metrics)

	projects := internal.NewProjects(conf, registry)
	projects.SetLogger(internal.NewLogger("projects", conf.IsDebug, database))
	projects.SetDatabase(database)
	projects.SetCounter(counter)
	projects.SetCertificates(certificates)

	server := internal.NewServer(conf)
	server.SetLogger(internal.NewLogger("server", conf.IsDebug, database))
	server.SetPaymentsService(payments)
	server.SetProjectsService(projects)
	server.SetMetrics(metrics)

	err = server.Start()
	if err != nil {
		logger.Error("server start", err)
		return
	}

}
