package db

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// RunInTransaction runs fn inside a multi-document transaction on a fresh session.
// The transaction is aborted whenever fn or the commit fails; no retry is attempted.
func RunInTransaction(ctx context.Context, client *mongo.Client, fn func(ctx context.Context) error) error {
	sess, err := client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(context.Background())

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sess.StartTransaction(); err != nil {
			return err
		}
		if err := fn(sc); err != nil {
			_ = sess.AbortTransaction(context.Background())
			return err
		}
		if err := sess.CommitTransaction(sc); err != nil {
			_ = sess.AbortTransaction(context.Background())
			return err
		}
		return nil
	})
}
