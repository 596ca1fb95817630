package model

import "strings"

// Event is one row of initialize_token_event_entity.
// VID is the monotonic cursor assigned by the indexer on insert.
type Event struct {
	VID               int64   `db:"vid"`
	BlockHeight       float64 `db:"block_height"`
	ID                string  `db:"id"`
	TxID              string  `db:"tx_id"`
	Admin             string  `db:"admin"`
	TokenID           float64 `db:"token_id"`
	Mint              string  `db:"mint"`
	ConfigAccount     string  `db:"config_account"`
	MetadataAccount   string  `db:"metadata_account"`
	TokenVault        string  `db:"token_vault"`
	Timestamp         float64 `db:"timestamp"`
	StartTimestamp    float64 `db:"start_timestamp"`
	MetadataTimestamp float64 `db:"metadata_timestamp"`
	ValueManager      string  `db:"value_manager"`
	WsolVault         string  `db:"wsol_vault"`

	TokenName   *string `db:"token_name"`
	TokenSymbol *string `db:"token_symbol"`
	TokenURI    *string `db:"token_uri"`

	Supply                         float64  `db:"supply"`
	CurrentEra                     float64  `db:"current_era"`
	CurrentEpoch                   float64  `db:"current_epoch"`
	ElapsedSecondsEpoch            float64  `db:"elapsed_seconds_epoch"`
	StartTimestampEpoch            float64  `db:"start_timestamp_epoch"`
	LastDifficultyCoefficientEpoch float64  `db:"last_difficulty_coefficient_epoch"`
	DifficultyCoefficientEpoch     float64  `db:"difficulty_coefficient_epoch"`
	MintSizeEpoch                  float64  `db:"mint_size_epoch"`
	QuantityMintedEpoch            float64  `db:"quantity_minted_epoch"`
	TargetMintSizeEpoch            float64  `db:"target_mint_size_epoch"`
	TotalMintFee                   float64  `db:"total_mint_fee"`
	TotalReferrerFee               float64  `db:"total_referrer_fee"`
	TotalTokens                    float64  `db:"total_tokens"`
	GraduateEpoch                  float64  `db:"graduate_epoch"`
	TargetEras                     *float64 `db:"target_eras"`
	EpochesPerEra                  *float64 `db:"epoches_per_era"`
	TargetSecondsPerEpoch          float64  `db:"target_seconds_per_epoch"`
	ReduceRatio                    float64  `db:"reduce_ratio"`
	InitialMintSize                float64  `db:"initial_mint_size"`
	InitialTargetMintSizePerEpoch  float64  `db:"initial_target_mint_size_per_epoch"`
	FeeRate                        float64  `db:"fee_rate"`
	LiquidityTokensRatio           float64  `db:"liquidity_tokens_ratio"`
	Status                         int32    `db:"status"`
}

func (e Event) Name() string   { return deref(e.TokenName) }
func (e Event) Symbol() string { return deref(e.TokenSymbol) }
func (e Event) URI() string    { return deref(e.TokenURI) }

// DisplayName is the best short label for log lines.
func (e Event) DisplayName() string {
	if n := e.Name(); n != "" {
		return n
	}
	if s := e.Symbol(); s != "" {
		return s
	}
	return e.Mint
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
