package cvsite

const (
	errorCodeConfiguration  = "cvsite.configuration"
	errorCodeStageExecution = "cvsite.stage_execution"
	errorCodeProvisioning   = "cvsite.provisioning"
	errorCodeInternal       = "cvsite.internal"
)

const (
	exitOK            = 0
	exitFailure       = 1
	exitConfiguration = 2
)
