package agreement

// Attribute types of the agreement entry schema. Lookups through the entry
// package are case-insensitive; the canonical spellings below match the
// stored schema.
const (
	AttrHost                         = "nsds5ReplicaHost"
	AttrPort                         = "nsds5ReplicaPort"
	AttrTransportInfo                = "nsds5ReplicaTransportInfo"
	AttrBindDN                       = "nsds5ReplicaBindDN"
	AttrCredentials                  = "nsds5ReplicaCredentials"
	AttrBindMethod                   = "nsds5ReplicaBindMethod"
	AttrRoot                         = "nsds5ReplicaRoot"
	AttrReplicatedAttributeList      = "nsds5ReplicatedAttributeList"
	AttrReplicatedAttributeListTotal = "nsds5ReplicatedAttributeListTotal"
	AttrUpdateSchedule               = "nsds5ReplicaUpdateSchedule"
	AttrTimeout                      = "nsds5ReplicaTimeout"
	AttrRUVElement                   = "nsds50ruv"
	AttrBusyWaitTime                 = "nsds5ReplicaBusyWaitTime"
	AttrSessionPauseTime             = "nsds5ReplicaSessionPauseTime"
	AttrFlowControlWindow            = "nsds5ReplicaFlowControlWindow"
	AttrFlowControlPause             = "nsds5ReplicaFlowControlPause"
	AttrIgnoreMissingChange          = "nsds5ReplicaIgnoreMissingChange"
	AttrProtocolTimeout              = "nsds5ReplicaProtocolTimeout"
	AttrEnabled                      = "nsds5ReplicaEnabled"
	AttrStripAttrs                   = "nsds5ReplicaStripAttrs"
	AttrBeginReplicaRefresh          = "nsds5BeginReplicaRefresh"
	AttrWaitForAsyncResults          = "nsds5ReplicaWaitForAsyncResults"
	AttrBootstrapBindDN              = "nsds5ReplicaBootstrapBindDN"
	AttrBootstrapCredentials         = "nsds5ReplicaBootstrapCredentials"
	AttrBootstrapBindMethod          = "nsds5ReplicaBootstrapBindMethod"
	AttrBootstrapTransportInfo       = "nsds5ReplicaBootstrapTransportInfo"
)

// Derived attributes injected by the read-time status hook.
const (
	AttrReapActive           = "nsds5replicaReapActive"
	AttrLastUpdateStart      = "nsds5replicaLastUpdateStart"
	AttrLastUpdateEnd        = "nsds5replicaLastUpdateEnd"
	AttrChangesSent          = "nsds5replicaChangesSentSinceStartup"
	AttrLastUpdateStatus     = "nsds5replicaLastUpdateStatus"
	AttrLastUpdateStatusJSON = "nsds5replicaLastUpdateStatusJSON"
	AttrUpdateInProgress     = "nsds5replicaUpdateInProgress"
	AttrLastInitStart        = "nsds5replicaLastInitStart"
	AttrLastInitEnd          = "nsds5replicaLastInitEnd"
	AttrLastInitStatus       = "nsds5replicaLastInitStatus"
	AttrLastInitStatusJSON   = "nsds5replicaLastInitStatusJSON"
)

// DefaultConfigDN is the well-known location of the process-wide default
// exclude specification. Its absence is tolerated.
const DefaultConfigDN = "cn=plugin default config,cn=config"

// consumerReplicaIDAttr is the attribute queried on the consumer's
// mapping-tree configuration entry to learn its replica identity.
const consumerReplicaIDAttr = "nsDS5ReplicaID"

// windowsAgreementObjectClass tags the Windows-interop agreement variant,
// which the consistency tracker skips.
const windowsAgreementObjectClass = "nsDSWindowsReplicationAgreement"
