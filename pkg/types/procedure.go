package types

import "time"

// ProcedureRequest names the technique a procedure example is generated for
type ProcedureRequest struct {
	TechniqueName        string `json:"technique_name"`
	TechniqueDescription string `json:"technique_description"`
}

// ProcedureExample is a generated example kept in the procedure archive
type ProcedureExample struct {
	ID                   string    `json:"id"`
	TechniqueName        string    `json:"technique_name"`
	TechniqueDescription string    `json:"technique_description"`
	Example              string    `json:"procedure_example"`
	Provider             string    `json:"provider"`
	CreatedAt            time.Time `json:"created_at"`
}
