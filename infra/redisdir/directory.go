package redisdir

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomo-delivery/dispatchd/core/model"
	"github.com/tomo-delivery/dispatchd/infra/logger"
)

// Config defines the Redis connection parameters.
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

const (
	indexKey = "riders:index"
	geoKey   = "riders:geo"
)

// claimScript atomically increments a rider's active order count while
// it is below capacity. An unset capacity counts as 1.
var claimScript = redis.NewScript(`
local cap = tonumber(redis.call('HGET', KEYS[1], 'capacity')) or 1
local act = tonumber(redis.call('HGET', KEYS[1], 'active_orders')) or 0
if act >= cap then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'active_orders', 1)
return 1
`)

// releaseScript decrements the active order count, never below zero.
var releaseScript = redis.NewScript(`
local act = tonumber(redis.call('HGET', KEYS[1], 'active_orders')) or 0
if act > 0 then
  redis.call('HINCRBY', KEYS[1], 'active_orders', -1)
end
return act
`)

// Directory stores rider state in Redis hashes, one per rider, with a
// zone-scoped index set and a GEO set for positions. The claim and
// release scripts are the atomic capacity operations the orchestrator
// relies on when two order workers race for the same rider.
type Directory struct {
	rdb *redis.Client
	log logger.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Directory, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Directory{rdb: rdb, log: logger.New("rider_directory")}, nil
}

func riderKey(id string) string { return "rider:" + id }

func zoneKey(zone string) string { return "riders:zone:" + zone }

// UpsertRider writes the rider's full state and indexes it.
func (d *Directory) UpsertRider(ctx context.Context, r model.Rider) error {
	pipe := d.rdb.TxPipeline()
	pipe.HSet(ctx, riderKey(r.ID), riderFields(r))
	pipe.SAdd(ctx, indexKey, r.ID)
	if r.Zone != "" {
		pipe.SAdd(ctx, zoneKey(r.Zone), r.ID)
	}
	if r.Location.Lat != 0 || r.Location.Lng != 0 {
		pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{Name: r.ID, Latitude: r.Location.Lat, Longitude: r.Location.Lng})
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveRider deletes the rider's state and index entries.
func (d *Directory) RemoveRider(ctx context.Context, id, zone string) error {
	pipe := d.rdb.TxPipeline()
	pipe.Del(ctx, riderKey(id))
	pipe.SRem(ctx, indexKey, id)
	if zone != "" {
		pipe.SRem(ctx, zoneKey(zone), id)
	}
	pipe.ZRem(ctx, geoKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// EligibleRiders returns the riders eligible to serve the order. When
// the order carries a zone the candidate set is scoped to it, otherwise
// the full index is scanned. Eligibility is evaluated on the snapshot;
// the atomic claim happens later.
func (d *Directory) EligibleRiders(ctx context.Context, order *model.Order) ([]model.Rider, error) {
	key := indexKey
	if order.Zone != "" {
		key = zoneKey(order.Zone)
	}
	ids, err := d.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("rider index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := d.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, riderKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rider snapshots: %w", err)
	}

	riders := make([]model.Rider, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		r := parseRider(ids[i], fields)
		if r.Eligible() {
			riders = append(riders, r)
		}
	}
	return riders, nil
}

// RiderSnapshot reads one rider's state.
func (d *Directory) RiderSnapshot(ctx context.Context, id string) (model.Rider, error) {
	fields, err := d.rdb.HGetAll(ctx, riderKey(id)).Result()
	if err != nil {
		return model.Rider{}, err
	}
	if len(fields) == 0 {
		return model.Rider{}, fmt.Errorf("rider %s not found", id)
	}
	return parseRider(id, fields), nil
}

// ClaimCapacity atomically reserves one capacity slot for the rider.
func (d *Directory) ClaimCapacity(ctx context.Context, riderID string) (bool, error) {
	res, err := claimScript.Run(ctx, d.rdb, []string{riderKey(riderID)}).Int()
	if err != nil {
		return false, fmt.Errorf("claim rider %s: %w", riderID, err)
	}
	return res == 1, nil
}

// ReleaseCapacity returns a previously claimed slot.
func (d *Directory) ReleaseCapacity(ctx context.Context, riderID string) error {
	if err := releaseScript.Run(ctx, d.rdb, []string{riderKey(riderID)}).Err(); err != nil {
		return fmt.Errorf("release rider %s: %w", riderID, err)
	}
	return nil
}

// UpdateLocation stores an accepted position sample.
func (d *Directory) UpdateLocation(ctx context.Context, sample model.LocationSample) error {
	pipe := d.rdb.TxPipeline()
	pipe.HSet(ctx, riderKey(sample.RiderID), map[string]any{
		"lat":         sample.Lat,
		"lng":         sample.Lng,
		"location_at": sample.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{Name: sample.RiderID, Latitude: sample.Lat, Longitude: sample.Lng})
	_, err := pipe.Exec(ctx)
	return err
}

// Close releases the Redis connection pool.
func (d *Directory) Close() error { return d.rdb.Close() }

func riderFields(r model.Rider) map[string]any {
	return map[string]any{
		"online":          strconv.FormatBool(r.Online),
		"approved":        strconv.FormatBool(r.Approved),
		"active":          strconv.FormatBool(r.Active),
		"capacity":        r.Capacity,
		"active_orders":   r.ActiveOrders,
		"zone":            r.Zone,
		"lat":             r.Location.Lat,
		"lng":             r.Location.Lng,
		"acceptance_rate": r.AcceptanceRate,
		"on_time_rate":    r.OnTimeRate,
		"recent_orders":   r.RecentOrders,
	}
}

func parseRider(id string, fields map[string]string) model.Rider {
	r := model.Rider{ID: id, Zone: fields["zone"]}
	r.Online, _ = strconv.ParseBool(fields["online"])
	r.Approved, _ = strconv.ParseBool(fields["approved"])
	r.Active, _ = strconv.ParseBool(fields["active"])
	r.Capacity, _ = strconv.Atoi(fields["capacity"])
	r.ActiveOrders, _ = strconv.Atoi(fields["active_orders"])
	r.Location.Lat, _ = strconv.ParseFloat(fields["lat"], 64)
	r.Location.Lng, _ = strconv.ParseFloat(fields["lng"], 64)
	r.AcceptanceRate, _ = strconv.ParseFloat(fields["acceptance_rate"], 64)
	r.OnTimeRate, _ = strconv.ParseFloat(fields["on_time_rate"], 64)
	r.RecentOrders, _ = strconv.Atoi(fields["recent_orders"])
	if at, err := time.Parse(time.RFC3339Nano, fields["location_at"]); err == nil {
		r.LocationAt = at
	}
	return r
}
