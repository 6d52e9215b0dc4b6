package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

const (
	// partition key of the samples table: "<user>#<namespace>.<series>"
	dynamoCollectionKey = "collection"
	// partition key of the catalog table, with "series" as sort key
	dynamoUserKey   = "userId"
	dynamoSeriesKey = "series"
)

// DynamoConfig names the tables DynamoStore reads.
type DynamoConfig struct {
	Region       string
	Endpoint     string
	SamplesTable string
	CatalogTable string
}

// DynamoStore implements DocumentStore on DynamoDB. Each collection is one
// partition of the samples table; predicates become a filter expression.
// A catalog table lists the series each user has.
type DynamoStore struct {
	client       dynamodbiface.DynamoDBAPI
	samplesTable string
	catalogTable string
}

// NewDynamoStore opens a session for cfg.Region, optionally against a local
// endpoint.
func NewDynamoStore(cfg DynamoConfig) (*DynamoStore, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return NewDynamoStoreWithClient(dynamodb.New(sess), cfg.SamplesTable, cfg.CatalogTable), nil
}

func NewDynamoStoreWithClient(client dynamodbiface.DynamoDBAPI, samplesTable, catalogTable string) *DynamoStore {
	return &DynamoStore{
		client:       client,
		samplesTable: samplesTable,
		catalogTable: catalogTable,
	}
}

func partitionKey(c Collection) string {
	return c.UserID + "#" + c.Key()
}

type dynamoExpression struct {
	filter string
	names  map[string]*string
	values map[string]*dynamodb.AttributeValue
}

func number(v int) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{N: aws.String(strconv.Itoa(v))}
}

// buildFilter translates predicates into a DynamoDB filter expression.
// contains-any has no native form and becomes a disjunction of contains.
func buildFilter(c Collection, where []Predicate) (dynamoExpression, error) {
	expr := dynamoExpression{
		names: map[string]*string{"#pk": aws.String(dynamoCollectionKey)},
		values: map[string]*dynamodb.AttributeValue{
			":pk": {S: aws.String(partitionKey(c))},
		},
	}

	clauses := make([]string, 0, len(where))
	for i, p := range where {
		if err := p.Validate(); err != nil {
			return dynamoExpression{}, err
		}
		name := fmt.Sprintf("#f%d", i)
		expr.names[name] = aws.String(string(p.Field))

		switch p.Op {
		case OpEq, OpLt, OpLte, OpGt, OpGte:
			op := string(p.Op)
			if p.Op == OpEq {
				op = "="
			}
			value := fmt.Sprintf(":v%d", i)
			expr.values[value] = number(p.Value)
			clauses = append(clauses, fmt.Sprintf("%s %s %s", name, op, value))
		case OpContains:
			value := fmt.Sprintf(":v%d", i)
			expr.values[value] = number(p.Value)
			clauses = append(clauses, fmt.Sprintf("contains(%s, %s)", name, value))
		case OpContainsAny:
			alts := make([]string, len(p.Values))
			for j, v := range p.Values {
				value := fmt.Sprintf(":v%d_%d", i, j)
				expr.values[value] = number(v)
				alts[j] = fmt.Sprintf("contains(%s, %s)", name, value)
			}
			clauses = append(clauses, "("+strings.Join(alts, " OR ")+")")
		}
	}
	expr.filter = strings.Join(clauses, " AND ")
	return expr, nil
}

func (s *DynamoStore) Query(ctx context.Context, q Query) ([]Document, error) {
	expr, err := buildFilter(q.Collection, q.Where)
	if err != nil {
		return nil, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.samplesTable),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
	}
	if expr.filter != "" {
		input.FilterExpression = aws.String(expr.filter)
	}

	var items []map[string]*dynamodb.AttributeValue
	err = s.client.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		items = append(items, page.Items...)
		return true
	})
	if err != nil {
		return nil, err
	}

	var docs []Document
	if err := dynamodbattribute.UnmarshalListOfMaps(items, &docs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal documents: %w", err)
	}
	return docs, nil
}

func (s *DynamoStore) CollectionExists(ctx context.Context, c Collection) (bool, error) {
	out, err := s.client.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.samplesTable),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]*string{"#pk": aws.String(dynamoCollectionKey)},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":pk": {S: aws.String(partitionKey(c))},
		},
		Limit: aws.Int64(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Items) > 0, nil
}

func (s *DynamoStore) ListSeries(ctx context.Context, userID string) ([]string, error) {
	var items []map[string]*dynamodb.AttributeValue
	err := s.client.QueryPagesWithContext(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.catalogTable),
		KeyConditionExpression:   aws.String("#u = :u"),
		ProjectionExpression:     aws.String("#s"),
		ExpressionAttributeNames: map[string]*string{"#u": aws.String(dynamoUserKey), "#s": aws.String(dynamoSeriesKey)},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":u": {S: aws.String(userID)},
		},
	}, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		items = append(items, page.Items...)
		return true
	})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Series string `dynamodbav:"series"`
	}
	if err := dynamodbattribute.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Series
	}
	return keys, nil
}

func (s *DynamoStore) Close() error {
	return nil
}

var _ DocumentStore = (*DynamoStore)(nil)
