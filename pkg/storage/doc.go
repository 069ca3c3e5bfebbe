// Package storage persists ByteFlow packets as S3 objects.
//
// A Store[T] keeps one object per ID under a key prefix (by default the
// packet name). Objects hold the codec frame of the value, so anything a
// peer sends can be stored and read back unchanged.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	entities := storage.NewStore[demo.Entity](s3.NewFromConfig(cfg), "byteflow-data", codec)
//
//	if err := entities.Put(ctx, id, e); err != nil {
//	    return err
//	}
//	e, err := entities.Get(ctx, id) // storage.ErrNotFound if absent
//
// Filtering helpers (Find, DeleteWhere, Update) read objects one by one and
// are meant for modest collections.
package storage
