package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelationTypeConstants(t *testing.T) {
	assert.Equal(t, "related_to", RelationRelatedTo)
	assert.Equal(t, "derived_from", RelationDerivedFrom)
	assert.Equal(t, "contradicts", RelationContradicts)
	assert.Equal(t, "supports", RelationSupports)
	assert.Equal(t, "resolved_by", RelationResolvedBy)
}

func TestRelationZeroValue(t *testing.T) {
	var r Relation
	assert.Zero(t, r.Weight)
}
