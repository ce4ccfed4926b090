package favorites

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"fireplay/utils"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection is the remote per-user favorites collection.
type Collection interface {
	Set(ctx context.Context, uid string, item Item) error
	Delete(ctx context.Context, uid string, gameID int64) error
	// Watch delivers the full collection, newest first, on every remote
	// change until ctx ends. It returns nil once ctx is done.
	Watch(ctx context.Context, uid string, onSnapshot func([]Item)) error
}

const (
	userCollection      = "users"
	favoritesCollection = "favorites"
)

var _ Collection = (*firestoreCollection)(nil)

type firestoreCollection struct {
	db *firestore.Client
}

func NewFirestoreCollection(db *firestore.Client) Collection {
	return &firestoreCollection{db: db}
}

func (c *firestoreCollection) ref(uid string) *firestore.CollectionRef {
	return c.db.Collection(userCollection).Doc(uid).Collection(favoritesCollection)
}

func docID(gameID int64) string {
	return strconv.FormatInt(gameID, 10)
}

func (c *firestoreCollection) Set(ctx context.Context, uid string, item Item) error {
	_, err := c.ref(uid).Doc(docID(item.ID)).Set(ctx, item)
	return err
}

func (c *firestoreCollection) Delete(ctx context.Context, uid string, gameID int64) error {
	_, err := c.ref(uid).Doc(docID(gameID)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (c *firestoreCollection) Watch(ctx context.Context, uid string, onSnapshot func([]Item)) error {
	iter := c.ref(uid).OrderBy("added_at", firestore.Desc).Snapshots(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return fmt.Errorf("reading favorites snapshot: %w", err)
		}
		items, err := utils.GetAllToStructs[Item](docs)
		if err != nil {
			return err
		}
		// The document key is authoritative for the game id.
		for i, doc := range docs {
			if id, err := strconv.ParseInt(doc.Ref.ID, 10, 64); err == nil {
				items[i].ID = id
			}
		}
		onSnapshot(items)
	}
}
