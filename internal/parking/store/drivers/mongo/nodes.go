package mongo

import (
	"context"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type nodeDoc struct {
	ID      string `bson:"_id"`
	Profile struct {
		Position string `bson:"position"`
		Token    string `bson:"token"`
	} `bson:"profile"`
	Data struct {
		Status string `bson:"status"`
	} `bson:"data"`
	UsedBy   string      `bson:"used_by"`
	Metadata metadataDoc `bson:"metadata"`
}

func (d nodeDoc) toDomain() domain.Node {
	return domain.Node{
		ID:         d.ID,
		Position:   d.Profile.Position,
		SecretHash: d.Profile.Token,
		Status:     domain.NodeStatus(d.Data.Status),
		UsedBy:     d.UsedBy,
		CreatedAt:  d.Metadata.CreatedAt,
		UpdatedAt:  d.Metadata.UpdatedAt,
	}
}

type nodesRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func (r *nodesRepo) GetNode(ctx context.Context, id string) (domain.Node, error) {
	var doc nodeDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return domain.Node{}, mapNotFound(err)
	}
	return doc.toDomain(), nil
}

func (r *nodesRepo) ListNodes(ctx context.Context, filter store.NodeFilter) ([]domain.Node, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["data.status"] = string(filter.Status)
	}
	if filter.UsedBy != "" {
		q["used_by"] = filter.UsedBy
	}

	cur, err := r.coll.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []nodeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	nodes := make([]domain.Node, len(docs))
	for i, d := range docs {
		nodes[i] = d.toDomain()
	}
	return nodes, nil
}

func (r *nodesRepo) CreateNode(ctx context.Context, n domain.Node) error {
	if n.Status == "" {
		n.Status = domain.NodeFree
	}
	now := r.now()

	doc := nodeDoc{ID: n.ID, UsedBy: n.UsedBy}
	doc.Profile.Position = n.Position
	doc.Profile.Token = n.SecretHash
	doc.Data.Status = string(n.Status)
	doc.Metadata = metadataDoc{CreatedAt: now, UpdatedAt: now}

	_, err := r.coll.InsertOne(ctx, doc)
	return mapDuplicate(err)
}

func (r *nodesRepo) UpdateNode(ctx context.Context, id string, patch store.NodePatch) error {
	return r.UpdateNodeIf(ctx, id, store.NodeCondition{}, patch)
}

func (r *nodesRepo) UpdateNodeIf(
	ctx context.Context,
	id string,
	cond store.NodeCondition,
	patch store.NodePatch,
) error {
	set := bson.M{"metadata.updated_at": r.now()}
	if patch.Status != nil {
		set["data.status"] = string(*patch.Status)
	}
	if patch.UsedBy != nil {
		set["used_by"] = *patch.UsedBy
	}
	if patch.Position != nil {
		set["profile.position"] = *patch.Position
	}
	if patch.SecretHash != nil {
		set["profile.token"] = *patch.SecretHash
	}

	guard := bson.M{}
	if len(cond.Status) > 0 {
		statuses := make([]string, len(cond.Status))
		for i, s := range cond.Status {
			statuses[i] = string(s)
		}
		guard["data.status"] = bson.M{"$in": statuses}
	}
	if cond.UsedBy != nil {
		guard["used_by"] = *cond.UsedBy
	}

	return updateIf(ctx, r.coll, id, guard, set)
}

func (r *nodesRepo) DeleteNode(ctx context.Context, id string) error {
	return deleteByID(ctx, r.coll, id)
}
