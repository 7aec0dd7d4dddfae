package repository

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/guregu/dynamo/v2"
	ttlcache "github.com/jellydator/ttlcache/v3"
	"github.com/remedyops/remedy/domain/entity"
)

var (
	incidentsTable = "incidents"
	actionsTable   = "incident_actions"
	knowledgeTable = "knowledge_base"
)

const knowledgeCacheKey = "all"

func init() {
	if os.Getenv("DYNAMO_INCIDENTS_TABLE") != "" {
		incidentsTable = os.Getenv("DYNAMO_INCIDENTS_TABLE")
	}
	if os.Getenv("DYNAMO_ACTIONS_TABLE") != "" {
		actionsTable = os.Getenv("DYNAMO_ACTIONS_TABLE")
	}
	if os.Getenv("DYNAMO_KNOWLEDGE_TABLE") != "" {
		knowledgeTable = os.Getenv("DYNAMO_KNOWLEDGE_TABLE")
	}
}

func NewDynamoDBRepository() (*DynamoDBRepository, error) {
	var db *dynamo.DB
	if os.Getenv("DYNAMO_LOCAL") != "" {
		cfg, err := config.LoadDefaultConfig(context.TODO(),
			config.WithRegion("dummy"),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "dummy")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}
		db = dynamo.New(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String("http://localhost:8000")
		},
		)

		err = setupDdbSchema(db)
		if err != nil {
			return nil, fmt.Errorf("failed to setup schema: %v", err)
		}
	} else {
		cfg, err := config.LoadDefaultConfig(context.TODO())
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}
		db = dynamo.New(cfg)
	}

	r := &DynamoDBRepository{
		db:             db,
		knowledgeCache: ttlcache.New(ttlcache.WithTTL[string, []entity.KnowledgeEntry](5 * time.Minute)),
	}
	go r.knowledgeCache.Start()

	return r, nil
}

func setupDdbSchema(db *dynamo.DB) error {
	tables := map[string]any{
		incidentsTable: entity.Incident{},
		actionsTable:   entity.IncidentAction{},
		knowledgeTable: entity.KnowledgeEntry{},
	}
	for name, model := range tables {
		t := db.Table(name)
		if _, err := t.Describe().Run(context.TODO()); err == nil {
			continue
		}

		input := db.CreateTable(name, model).Provision(10, 10)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := input.Run(ctx)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

type DynamoDBRepository struct {
	db             *dynamo.DB
	knowledgeCache *ttlcache.Cache[string, []entity.KnowledgeEntry]
}

func (r *DynamoDBRepository) FindIncidentByID(ctx context.Context, id string) (*entity.Incident, error) {
	incident := &entity.Incident{}
	err := r.db.Table(incidentsTable).Get("id", id).One(ctx, incident)
	if err != nil {
		if err == dynamo.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return incident, nil
}

func (r *DynamoDBRepository) SaveIncident(ctx context.Context, incident *entity.Incident) error {
	return r.db.Table(incidentsTable).Put(incident).Run(ctx)
}

func (r *DynamoDBRepository) Incidents(ctx context.Context, filter IncidentFilter) ([]entity.Incident, error) {
	scan := r.db.Table(incidentsTable).Scan()
	if filter.Status != "" {
		scan = scan.Filter("'status' = ?", filter.Status)
	}
	if filter.Severity != "" {
		scan = scan.Filter("'severity' = ?", filter.Severity)
	}
	if filter.Service != "" {
		scan = scan.Filter("'service_name' = ?", filter.Service)
	}

	var incidents []entity.Incident
	if err := scan.All(ctx, &incidents); err != nil {
		return nil, err
	}
	return newestFirst(incidents, filter.Limit), nil
}

// newestFirst orders incidents by detection time descending before the limit
// is applied, so a capped listing keeps the most recent ones. Scan results
// carry no useful order of their own.
func newestFirst(incidents []entity.Incident, limit int) []entity.Incident {
	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].DetectedAt.After(incidents[j].DetectedAt)
	})
	if limit > 0 && len(incidents) > limit {
		incidents = incidents[:limit]
	}
	return incidents
}

func (r *DynamoDBRepository) AddAction(ctx context.Context, action *entity.IncidentAction) error {
	return r.db.Table(actionsTable).Put(action).Run(ctx)
}

func (r *DynamoDBRepository) ActionsByIncident(ctx context.Context, incidentID string) ([]entity.IncidentAction, error) {
	var actions []entity.IncidentAction
	err := r.db.Table(actionsTable).Scan().Filter("'incident_id' = ?", incidentID).All(ctx, &actions)
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *DynamoDBRepository) AddKnowledgeEntry(ctx context.Context, kbEntry *entity.KnowledgeEntry) error {
	if err := r.db.Table(knowledgeTable).Put(kbEntry).Run(ctx); err != nil {
		return err
	}
	r.knowledgeCache.Delete(knowledgeCacheKey)
	return nil
}

// KnowledgeEntries scans the knowledge base. The scan result is cached for a
// few minutes; similarity checks run on every incident and the table only
// grows on resolution.
func (r *DynamoDBRepository) KnowledgeEntries(ctx context.Context) ([]entity.KnowledgeEntry, error) {
	if item := r.knowledgeCache.Get(knowledgeCacheKey); item != nil {
		return item.Value(), nil
	}

	var entries []entity.KnowledgeEntry
	if err := r.db.Table(knowledgeTable).Scan().All(ctx, &entries); err != nil {
		return nil, err
	}

	r.knowledgeCache.Set(knowledgeCacheKey, entries, ttlcache.DefaultTTL)
	return entries, nil
}
