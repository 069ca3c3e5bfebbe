// Package config loads byteflow CLI configuration.
//
// Settings live in byteflow.json in the working directory. Any of them can
// be overridden with BYTEFLOW_* environment variables, which are also read
// from an optional .env file next to byteflow.json. Variables already set in
// the process take precedence over the file.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "addr": ":5100",
//	    "path": "/ws",
//	    "heartbeatInterval": "10s",
//	    "maxConnections": 1000,
//	    "rateLimit": 5,
//	    "trustedProxies": ["10.0.0.0/8"],
//	    "shutdownTimeout": "30s"
//	  },
//	  "client": {
//	    "url": "ws://127.0.0.1:5100/ws",
//	    "heartbeatInterval": "10s"
//	  },
//	  "redis": {
//	    "addr": "localhost:6379",
//	    "databases": [0, 3]
//	  },
//	  "storage": {
//	    "bucket": "byteflow-data",
//	    "region": "us-east-1"
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  }
//	}
//
// # Environment
//
//	BYTEFLOW_ADDR, BYTEFLOW_PATH, BYTEFLOW_HEARTBEAT_INTERVAL,
//	BYTEFLOW_MAX_CONNECTIONS, BYTEFLOW_RATE_LIMIT, BYTEFLOW_RATE_BURST,
//	BYTEFLOW_JWT_SECRET, BYTEFLOW_TRUSTED_PROXIES, BYTEFLOW_SHUTDOWN_TIMEOUT,
//	BYTEFLOW_URL, BYTEFLOW_REDIS_ADDR, BYTEFLOW_REDIS_USERNAME,
//	BYTEFLOW_REDIS_PASSWORD, BYTEFLOW_REDIS_DATABASES, BYTEFLOW_S3_BUCKET,
//	BYTEFLOW_S3_REGION, BYTEFLOW_S3_ENDPOINT, BYTEFLOW_S3_PREFIX,
//	BYTEFLOW_LOG_LEVEL, BYTEFLOW_LOG_FORMAT
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv := server.New(codec, cfg.ServerOptions())
package config
