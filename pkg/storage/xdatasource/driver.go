package xdatasource

// clickhouse 驱动，影子数据源可配置 driver: clickhouse。
import _ "github.com/ClickHouse/clickhouse-go/v2"
