package storage

// Schema is applied in order by the migrate command and by NewMySQLStore.
var Schema = []struct {
	Table string
	DDL   string
}{
	{"studios", `
    CREATE TABLE IF NOT EXISTS studios (
        id CHAR(36) PRIMARY KEY,
        slug VARCHAR(100) NOT NULL,
        name VARCHAR(255) NOT NULL,
        currency CHAR(3) NOT NULL DEFAULT 'usd',
        gateway_account_id VARCHAR(255) NULL,
        gateway_charges_enabled BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        UNIQUE KEY uq_studios_slug (slug)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"class_types", `
    CREATE TABLE IF NOT EXISTS class_types (
        id CHAR(36) PRIMARY KEY,
        studio_id CHAR(36) NOT NULL,
        name VARCHAR(255) NOT NULL,
        price DECIMAL(10,2) NOT NULL,
        INDEX idx_class_types_studio (studio_id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"teachers", `
    CREATE TABLE IF NOT EXISTS teachers (
        id CHAR(36) PRIMARY KEY,
        studio_id CHAR(36) NOT NULL,
        first_name VARCHAR(100) NOT NULL,
        last_name VARCHAR(100) NOT NULL,
        INDEX idx_teachers_studio (studio_id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"locations", `
    CREATE TABLE IF NOT EXISTS locations (
        id CHAR(36) PRIMARY KEY,
        studio_id CHAR(36) NOT NULL,
        name VARCHAR(255) NOT NULL,
        INDEX idx_locations_studio (studio_id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"class_sessions", `
    CREATE TABLE IF NOT EXISTS class_sessions (
        id CHAR(36) PRIMARY KEY,
        studio_id CHAR(36) NOT NULL,
        class_type_id CHAR(36) NOT NULL,
        teacher_id CHAR(36) NOT NULL,
        location_id CHAR(36) NOT NULL,
        start_time DATETIME NOT NULL,
        end_time DATETIME NOT NULL,
        capacity INT NOT NULL,
        INDEX idx_class_sessions_studio_start (studio_id, start_time),
        CONSTRAINT chk_class_sessions_capacity CHECK (capacity > 0)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"clients", `
    CREATE TABLE IF NOT EXISTS clients (
        id CHAR(36) PRIMARY KEY,
        studio_id CHAR(36) NOT NULL,
        email VARCHAR(255) NOT NULL,
        first_name VARCHAR(100) NOT NULL DEFAULT '',
        last_name VARCHAR(100) NOT NULL DEFAULT '',
        gateway_customer_id VARCHAR(255) NULL,
        credits INT NOT NULL DEFAULT 0,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        UNIQUE KEY uq_clients_studio_email (studio_id, email)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"payments", `
    CREATE TABLE IF NOT EXISTS payments (
        id CHAR(36) PRIMARY KEY,
        studio_id CHAR(36) NOT NULL,
        client_id CHAR(36) NOT NULL,
        class_session_id CHAR(36) NOT NULL,
        amount BIGINT NOT NULL,
        currency CHAR(3) NOT NULL,
        status VARCHAR(20) NOT NULL,
        booking_type VARCHAR(20) NOT NULL,
        credits_purchased INT NOT NULL DEFAULT 1,
        unit_price DECIMAL(10,2) NOT NULL,
        auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
        class_name VARCHAR(255) NOT NULL DEFAULT '',
        teacher_name VARCHAR(255) NOT NULL DEFAULT '',
        location_name VARCHAR(255) NOT NULL DEFAULT '',
        tracking_code VARCHAR(100) NULL,
        gateway_intent_id VARCHAR(255) NOT NULL,
        gateway_charge_id VARCHAR(255) NULL,
        gateway_customer_id VARCHAR(255) NULL,
        payment_method_id VARCHAR(255) NULL,
        subscription_id VARCHAR(255) NULL,
        next_charge_at DATETIME NULL,
        refund_id VARCHAR(255) NULL,
        refund_amount BIGINT NOT NULL DEFAULT 0,
        refunded_at DATETIME NULL,
        refund_reason VARCHAR(50) NULL,
        refund_failed_at DATETIME NULL,
        refund_error TEXT NULL,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
        UNIQUE KEY uq_payments_intent (gateway_intent_id),
        INDEX idx_payments_studio_status (studio_id, status),
        INDEX idx_payments_session (class_session_id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"bookings", `
    CREATE TABLE IF NOT EXISTS bookings (
        id CHAR(36) PRIMARY KEY,
        studio_id CHAR(36) NOT NULL,
        client_id CHAR(36) NOT NULL,
        class_session_id CHAR(36) NOT NULL,
        status VARCHAR(20) NOT NULL,
        payment_id CHAR(36) NULL,
        paid_amount DECIMAL(10,2) NOT NULL DEFAULT 0,
        active_key VARCHAR(80) GENERATED ALWAYS AS (
            CASE WHEN status IN ('CONFIRMED', 'PENDING') THEN CONCAT(client_id, ':', class_session_id) END
        ) STORED,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
        UNIQUE KEY uq_bookings_active (active_key),
        INDEX idx_bookings_session_status (class_session_id, status),
        UNIQUE KEY uq_bookings_payment (payment_id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"standing_plans", `
    CREATE TABLE IF NOT EXISTS standing_plans (
        id CHAR(36) PRIMARY KEY,
        studio_id CHAR(36) NOT NULL,
        client_id CHAR(36) NOT NULL,
        kind VARCHAR(30) NOT NULL,
        class_type_id CHAR(36) NOT NULL,
        teacher_id CHAR(36) NOT NULL,
        location_id CHAR(36) NOT NULL,
        pack_size INT NOT NULL DEFAULT 0,
        amount BIGINT NOT NULL,
        currency CHAR(3) NOT NULL,
        gateway_customer_id VARCHAR(255) NULL,
        payment_method_id VARCHAR(255) NULL,
        subscription_id VARCHAR(255) NULL,
        day_of_week TINYINT NOT NULL,
        start_time CHAR(5) NOT NULL,
        next_charge_at DATETIME NULL,
        last_payment_id CHAR(36) NOT NULL,
        active BOOLEAN NOT NULL DEFAULT TRUE,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
        UNIQUE KEY uq_standing_plans_signature (studio_id, client_id, kind, class_type_id, teacher_id, location_id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"conversions", `
    CREATE TABLE IF NOT EXISTS conversions (
        id CHAR(36) PRIMARY KEY,
        studio_id CHAR(36) NOT NULL,
        tracking_code VARCHAR(100) NOT NULL,
        payment_id CHAR(36) NOT NULL,
        client_id CHAR(36) NOT NULL,
        amount BIGINT NOT NULL,
        currency CHAR(3) NOT NULL,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        UNIQUE KEY uq_conversions_payment (payment_id),
        INDEX idx_conversions_tracking (studio_id, tracking_code)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
}
