// Package cache stores ByteFlow packets in Redis.
//
// A Provider owns one go-redis client per allowed database. A Store[T] keeps
// values of one packet type under a key prefix, encoded with the protocol
// codec, so cached values are exactly the frames peers exchange.
//
//	p, err := cache.New(cache.Options{Addr: "localhost:6379", AllowedDatabases: []int{0, 1}})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	logins := cache.NewStore[demo.LoginResponse](p, codec,
//	    cache.WithKeyPrefix("login"),
//	    cache.WithDatabase(1),
//	)
//	err = logins.Set(ctx, userID, resp, time.Hour)
//
// Get refreshes the expiry atomically when asked to:
//
//	resp, err := logins.GetAndTouch(ctx, userID, time.Hour)
package cache
