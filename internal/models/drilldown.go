package models

import (
	"fmt"
	"strings"
)

// DrilldownLevel is one step of the Line -> SDWT/PRC group -> equipment cascade.
type DrilldownLevel string

const (
	LevelLine      DrilldownLevel = "line"
	LevelSdwt      DrilldownLevel = "sdwt"
	LevelPrcGroup  DrilldownLevel = "prcGroup"
	LevelEquipment DrilldownLevel = "equipment"
)

// DrilldownContext parameterizes every log fetch.
type DrilldownContext struct {
	LineID   string `json:"lineId" validate:"required"`
	SdwtID   string `json:"sdwtId,omitempty"`
	PrcGroup string `json:"prcGroup,omitempty"`
	EqpID    string `json:"eqpId" validate:"required"`
}

// Key returns the fetch identity of the context. Two contexts with the same key
// fetch the same data.
func (c DrilldownContext) Key() string {
	return strings.Join([]string{c.LineID, c.SdwtID, c.PrcGroup, c.EqpID}, "|")
}

// Complete reports whether the context names both a line and an equipment.
func (c DrilldownContext) Complete() bool {
	return c.LineID != "" && c.EqpID != ""
}

// SharePath returns the path of the timeline page for this context.
func (c DrilldownContext) SharePath() string {
	return fmt.Sprintf("/timeline/%s/%s/%s", c.LineID, c.SdwtID, c.EqpID)
}

// WithLine selects a line and clears everything below it.
func (c DrilldownContext) WithLine(lineID string) DrilldownContext {
	return DrilldownContext{LineID: lineID}
}

// WithSdwt selects an SDWT and clears the PRC group and equipment.
func (c DrilldownContext) WithSdwt(sdwtID string) DrilldownContext {
	return DrilldownContext{LineID: c.LineID, SdwtID: sdwtID}
}

// WithPrcGroup selects a PRC group and clears the equipment.
func (c DrilldownContext) WithPrcGroup(prcGroup string) DrilldownContext {
	return DrilldownContext{LineID: c.LineID, SdwtID: c.SdwtID, PrcGroup: prcGroup}
}

// WithEquipment selects the equipment.
func (c DrilldownContext) WithEquipment(eqpID string) DrilldownContext {
	c.EqpID = eqpID
	return c
}

// Option is one entry of a drilldown selector.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// EquipmentInfo locates one equipment in the drilldown hierarchy.
type EquipmentInfo struct {
	LineID   string `json:"lineId"`
	SdwtID   string `json:"sdwtId"`
	PrcGroup string `json:"prcGroup"`
	EqpID    string `json:"eqpId"`
}
