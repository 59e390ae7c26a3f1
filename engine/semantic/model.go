package semantic

import (
	"time"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
)

// Payload field names.
const (
	fieldContent   = "content"
	fieldSourceURL = "source_url"
	fieldCreatedAt = "created_at"
	fieldEmbedded  = "embedded"
	fieldMetadata  = "metadata"
)

// payloadFromDocument encodes the persisted fields of a document. The
// embedded flag records whether the stored vector is a real embedding.
func payloadFromDocument(doc domain.Document) map[string]*pb.Value {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	payload := map[string]*pb.Value{
		fieldContent:   stringValue(doc.Content),
		fieldCreatedAt: stringValue(createdAt.UTC().Format(time.RFC3339Nano)),
		fieldEmbedded:  boolValue(len(doc.Embedding) > 0),
	}
	if doc.SourceURL != "" {
		payload[fieldSourceURL] = stringValue(doc.SourceURL)
	}
	if doc.Metadata != nil {
		payload[fieldMetadata] = metadataValue(*doc.Metadata)
	}
	return payload
}

// documentFromPayload decodes a stored point back into a Document. Unknown
// or missing fields decode to their zero values.
func documentFromPayload(id string, payload map[string]*pb.Value) domain.Document {
	doc := domain.Document{ID: id}
	if v, ok := payload[fieldContent]; ok {
		doc.Content = v.GetStringValue()
	}
	if v, ok := payload[fieldSourceURL]; ok {
		doc.SourceURL = v.GetStringValue()
	}
	if v, ok := payload[fieldCreatedAt]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v.GetStringValue()); err == nil {
			doc.CreatedAt = t
		}
	}
	if v, ok := payload[fieldMetadata]; ok {
		doc.Metadata = metadataFromValue(v)
	}
	return doc
}

func metadataValue(meta domain.Metadata) *pb.Value {
	fields := map[string]*pb.Value{
		"named_entities": structValue(map[string]*pb.Value{
			"organizations": stringListValue(meta.NamedEntities.Organizations),
			"persons":       stringListValue(meta.NamedEntities.Persons),
			"locations":     stringListValue(meta.NamedEntities.Locations),
			"dates":         stringListValue(meta.NamedEntities.Dates),
		}),
	}
	if meta.PublisherName != "" {
		fields["publisher_name"] = stringValue(meta.PublisherName)
	}
	if meta.Author != "" {
		fields["author"] = stringValue(meta.Author)
	}
	if len(meta.Categories) > 0 {
		fields["categories"] = stringListValue(meta.Categories)
	}
	return structValue(fields)
}

func metadataFromValue(v *pb.Value) *domain.Metadata {
	s := v.GetStructValue()
	if s == nil {
		return nil
	}
	fields := s.GetFields()
	meta := &domain.Metadata{
		PublisherName: fields["publisher_name"].GetStringValue(),
		Author:        fields["author"].GetStringValue(),
		Categories:    stringListFromValue(fields["categories"]),
	}
	if ents := fields["named_entities"].GetStructValue(); ents != nil {
		ef := ents.GetFields()
		meta.NamedEntities = domain.NamedEntities{
			Organizations: stringListFromValue(ef["organizations"]),
			Persons:       stringListFromValue(ef["persons"]),
			Locations:     stringListFromValue(ef["locations"]),
			Dates:         stringListFromValue(ef["dates"]),
		}
	}
	return meta
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func boolValue(b bool) *pb.Value {
	return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: b}}
}

func structValue(fields map[string]*pb.Value) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
}

func stringListValue(items []string) *pb.Value {
	values := make([]*pb.Value, len(items))
	for i, s := range items {
		values[i] = stringValue(s)
	}
	return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
}

func stringListFromValue(v *pb.Value) []string {
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	var out []string
	for _, item := range list.GetValues() {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
